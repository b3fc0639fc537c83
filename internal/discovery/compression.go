// internal/discovery/compression.go
package discovery

import (
	"compress/gzip"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// Pools for decompression readers to reduce allocation overhead on large trees
// of compressed bundles.
var (
	gzipReaderPool = sync.Pool{
		New: func() interface{} {
			// Allocated empty; Reset() is always called before use.
			return new(gzip.Reader)
		},
	}

	brotliReaderPool = sync.Pool{
		New: func() interface{} {
			return brotli.NewReader(nil)
		},
	}
)

// Shared empty reader used for safely resetting pooled readers.
var emptyReader = strings.NewReader("")

// compression identifies how a bundle on disk is encoded.
type compression int

const (
	compressionNone compression = iota
	compressionGzip
	compressionBrotli
)

// compressionFor strips a known compression suffix from name.
func compressionFor(name string) (compression, string) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".gz"):
		return compressionGzip, name[:len(name)-len(".gz")]
	case strings.HasSuffix(lower, ".br"):
		return compressionBrotli, name[:len(name)-len(".br")]
	default:
		return compressionNone, name
	}
}

func getGzipReader(r io.Reader) (*gzip.Reader, error) {
	zr := gzipReaderPool.Get().(*gzip.Reader)
	if err := zr.Reset(r); err != nil {
		// The allocation is still valid; the next Reset re-initializes it.
		gzipReaderPool.Put(zr)
		return nil, err
	}
	return zr, nil
}

func putGzipReader(zr *gzip.Reader) {
	// An empty reader rather than nil: Reset(nil) tries to read a header.
	_ = zr.Reset(emptyReader)
	gzipReaderPool.Put(zr)
}

func getBrotliReader(r io.Reader) *brotli.Reader {
	br := brotliReaderPool.Get().(*brotli.Reader)
	// brotli.Reader.Reset only fails on a nil receiver.
	_ = br.Reset(r)
	return br
}

func putBrotliReader(br *brotli.Reader) {
	_ = br.Reset(emptyReader)
	brotliReaderPool.Put(br)
}

// readDecompressed reads r through the decoder for c. At most limit bytes of
// decoded output are accepted, which keeps a small compressed file from
// expanding past the configured size cap.
func readDecompressed(r io.Reader, c compression, limit int64) ([]byte, error) {
	var src io.Reader
	switch c {
	case compressionGzip:
		zr, err := getGzipReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip initialization error: %w", err)
		}
		defer putGzipReader(zr)
		src = zr
	case compressionBrotli:
		br := getBrotliReader(r)
		defer putBrotliReader(br)
		src = br
	default:
		src = r
	}

	data, err := io.ReadAll(io.LimitReader(src, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("content exceeds the maximum file size of %d bytes", limit)
	}
	return data, nil
}

// ReadEncoded decodes an HTTP body according to its Content-Encoding header.
// Only identity, gzip and br are accepted since those are the encodings the
// fetcher advertises.
func ReadEncoded(r io.Reader, contentEncoding string, limit int64) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(contentEncoding)) {
	case "", "identity":
		return readDecompressed(r, compressionNone, limit)
	case "gzip", "x-gzip":
		return readDecompressed(r, compressionGzip, limit)
	case "br":
		return readDecompressed(r, compressionBrotli, limit)
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", contentEncoding)
	}
}

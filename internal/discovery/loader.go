// internal/discovery/loader.go
package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/config"
)

// Loader turns files and directories on disk into script sources.
type Loader struct {
	logger      *zap.Logger
	extensions  map[string]bool
	excludes    []glob.Glob
	maxFileSize int64
	followHTML  bool
}

// NewLoader compiles the exclude patterns of cfg.
func NewLoader(logger *zap.Logger, cfg config.DiscoveryConfig) (*Loader, error) {
	l := &Loader{
		logger:      logger.Named("discovery"),
		extensions:  make(map[string]bool, len(cfg.Extensions)),
		maxFileSize: cfg.MaxFileSize,
		followHTML:  cfg.FollowHTML,
	}
	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		l.extensions[ext] = true
	}
	for _, pattern := range cfg.Exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		l.excludes = append(l.excludes, g)
	}
	if l.maxFileSize <= 0 {
		l.maxFileSize = 10 << 20
	}
	return l, nil
}

// Discover walks roots and loads every supported script. Files that cannot
// be read are returned as io_error entries instead of aborting the walk.
// Sources come back sorted by path. If ctx is cancelled the walk stops and
// what was loaded so far is returned with ctx's error.
func (l *Loader) Discover(ctx context.Context, roots []string) ([]schemas.ScriptSource, []schemas.AnalysisError, error) {
	var (
		sources []schemas.ScriptSource
		errs    []schemas.AnalysisError
	)
	ioError := func(path string, err error) {
		l.logger.Warn("Could not load file", zap.String("file", path), zap.Error(err))
		errs = append(errs, schemas.AnalysisError{File: path, Kind: schemas.ErrorKindIO, Message: err.Error()})
	}

	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if walkErr != nil {
				ioError(path, walkErr)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != root && l.excluded(path+"/") {
					l.logger.Debug("Skipping excluded directory", zap.String("dir", path))
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() || l.excluded(path) {
				return nil
			}

			loaded, err := l.loadFile(path, d)
			if err != nil {
				ioError(path, err)
				return nil
			}
			sources = append(sources, loaded...)
			return nil
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				sortSources(sources)
				return sources, errs, ctxErr
			}
			ioError(root, err)
		}
	}

	sortSources(sources)
	l.logger.Info("Discovery complete",
		zap.Int("roots", len(roots)),
		zap.Int("sources", len(sources)),
		zap.Int("errors", len(errs)),
	)
	return sources, errs, nil
}

// excluded matches the slash form of path against the exclude globs. The
// path is rooted with "/" so "**/dir/**" also matches at the top level.
func (l *Loader) excluded(path string) bool {
	candidate := "/" + strings.TrimPrefix(filepath.ToSlash(path), "/")
	for _, g := range l.excludes {
		if g.Match(candidate) {
			return true
		}
	}
	return false
}

// loadFile returns the sources held by one file: one script, the inline
// blocks of an HTML page, or nothing for unsupported extensions.
func (l *Loader) loadFile(path string, d fs.DirEntry) ([]schemas.ScriptSource, error) {
	comp, base := compressionFor(path)
	ext := strings.ToLower(filepath.Ext(base))
	isHTML := ext == ".html" || ext == ".htm"

	switch {
	case isHTML && l.followHTML:
	case l.extensions[ext]:
	default:
		return nil, nil
	}

	info, err := d.Info()
	if err != nil {
		return nil, err
	}
	if info.Size() > l.maxFileSize {
		return nil, fmt.Errorf("file size %d exceeds the maximum of %d bytes", info.Size(), l.maxFileSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := readDecompressed(f, comp, l.maxFileSize)
	if err != nil {
		return nil, err
	}

	if isHTML {
		scripts, err := ExtractInlineScripts(path, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		l.logger.Debug("Extracted inline scripts", zap.String("file", path), zap.Int("count", len(scripts)))
		return scripts, nil
	}

	return []schemas.ScriptSource{{URL: path, Content: string(data), Type: schemas.ScriptExternal}}, nil
}

// sortSources orders by file path. The sort is stable on the part before any
// '#', so the inline blocks of one page keep their document order.
func sortSources(sources []schemas.ScriptSource) {
	filePart := func(s string) string {
		if i := strings.IndexByte(s, '#'); i >= 0 {
			return s[:i]
		}
		return s
	}
	sort.SliceStable(sources, func(i, j int) bool { return filePart(sources[i].URL) < filePart(sources[j].URL) })
}

// internal/network/fetcher.go
package network

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/config"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/discovery"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/observability"
)

// Fetcher retrieves scripts over plain HTTP, without a browser. Nothing on
// the page executes, so only statically referenced scripts are found; use
// the browser harvester for pages that load code at runtime.
type Fetcher struct {
	client *http.Client
	logger *zap.Logger
	cfg    config.FetchConfig
}

// NewFetcher builds a fetcher on the tuned client from this package.
func NewFetcher(logger *zap.Logger, cfg config.FetchConfig) *Fetcher {
	return &Fetcher{
		client: NewClient(ClientConfigFromFetch(logger, cfg)),
		logger: logger.Named("fetcher"),
		cfg:    cfg,
	}
}

// IsRemote reports whether target names an http or https resource.
func IsRemote(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

type fetched struct {
	body        []byte
	finalURL    *url.URL
	contentType string
}

// Fetch retrieves target. A script response becomes one external source. An
// HTML response contributes its inline blocks followed by every <script src>
// it references, fetched concurrently. Failures on referenced scripts are returned
// as io_error entries; only a failure on target itself is returned as the
// error. If ctx is cancelled the sources fetched so far are returned with
// ctx's error.
func (f *Fetcher) Fetch(ctx context.Context, target string) ([]schemas.ScriptSource, []schemas.AnalysisError, error) {
	page, err := f.get(ctx, target)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch %s: %w", target, err)
	}

	pageURL := page.finalURL.String()
	if !isHTML(page) {
		return []schemas.ScriptSource{{URL: pageURL, Content: string(page.body), Type: schemas.ScriptExternal}}, nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.body))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse HTML from %s: %w", pageURL, err)
	}
	sources := discovery.InlineScriptsFromDocument(pageURL, doc)
	externals := f.externalScripts(page.finalURL, doc)
	f.logger.Debug("Parsed page",
		zap.String("url", pageURL),
		zap.Int("inline", len(sources)),
		zap.Int("external", len(externals)),
	)

	var (
		bodies = make([][]byte, len(externals))
		errs   = make([]error, len(externals))
		g      errgroup.Group
	)
	g.SetLimit(max(f.cfg.Concurrency, 1))
	for i := range externals {
		g.Go(func() error {
			res, err := f.get(ctx, externals[i].URL)
			if err != nil {
				errs[i] = err
				return nil
			}
			bodies[i] = res.body
			return nil
		})
	}
	// Tasks record failures per script and never return an error.
	_ = g.Wait()

	var ioErrors []schemas.AnalysisError
	for i, src := range externals {
		if errs[i] != nil {
			if ctx.Err() != nil {
				continue
			}
			f.logger.Warn("Failed to fetch referenced script", zap.String("url", src.URL), zap.Error(errs[i]))
			ioErrors = append(ioErrors, schemas.AnalysisError{
				File:    src.URL,
				Kind:    schemas.ErrorKindIO,
				Message: errs[i].Error(),
			})
			continue
		}
		if len(bytes.TrimSpace(bodies[i])) == 0 {
			continue
		}
		src.Content = string(bodies[i])
		sources = append(sources, src)
	}
	return sources, ioErrors, ctx.Err()
}

// externalScripts resolves the page's <script src> references, dropping
// duplicates and non-HTTP schemes. With same_site_only, references outside
// the page's registrable domain are dropped as well.
func (f *Fetcher) externalScripts(base *url.URL, doc *goquery.Document) []schemas.ScriptSource {
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = base.ResolveReference(ref)
		}
	}

	seen := make(map[string]bool)
	var out []schemas.ScriptSource
	for _, src := range discovery.ExternalScriptsFromDocument(doc) {
		ref, err := url.Parse(src)
		if err != nil {
			f.logger.Debug("Skipping unparsable script src", zap.String("src", src), zap.Error(err))
			continue
		}
		abs := base.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			continue
		}
		abs.Fragment = ""
		key := abs.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, schemas.ScriptSource{URL: key, Type: schemas.ScriptExternal})
	}

	if !f.cfg.SameSiteOnly || len(out) == 0 {
		return out
	}
	scope, err := discovery.NewBasicScopeManager(base.String())
	if err != nil {
		f.logger.Warn("Could not determine page scope; keeping every script", zap.Error(err))
		return out
	}
	kept, dropped := discovery.FilterInScope(scope, out)
	if len(dropped) > 0 {
		f.logger.Info("Dropped out of scope scripts",
			zap.String("scope", scope.GetRootDomain()),
			zap.Strings("urls", dropped),
		)
	}
	return kept
}

func (f *Fetcher) get(ctx context.Context, target string) (res fetched, err error) {
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		observability.RemoteFetchesTotal.WithLabelValues(status).Inc()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return res, fmt.Errorf("invalid request: %w", err)
	}
	if f.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := f.client.Do(req)
	if err != nil {
		return res, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return res, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := discovery.ReadEncoded(resp.Body, resp.Header.Get("Content-Encoding"), f.cfg.MaxBodySize)
	if err != nil {
		return res, err
	}
	return fetched{body: body, finalURL: resp.Request.URL, contentType: resp.Header.Get("Content-Type")}, nil
}

// isHTML decides from the Content-Type header, sniffing the body when the
// header is absent.
func isHTML(res fetched) bool {
	ct := res.contentType
	if ct == "" {
		ct = http.DetectContentType(res.body)
	}
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

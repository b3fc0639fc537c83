// internal/browser/harvester.go
package browser

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/config"
	"github.com/xkilldash9x/scalpel-jsrecon/internal/discovery"
)

// collectorJS runs in the page after load. It returns inline blocks, the
// contents of <script src> elements fetched from inside the page (so cookies
// and CORS behave as they do for the page), and script resources that were
// loaded without a matching element, such as import() chunks.
const collectorJS = `(async () => {
  const out = [];
  const seen = new Set();
  const grab = async (src, type) => {
    if (!src || seen.has(src)) return;
    seen.add(src);
    try {
      const res = await fetch(src, {credentials: 'include'});
      out.push({url: src, content: await res.text(), type: type});
    } catch (e) {
      out.push({url: src, content: '', type: type});
    }
  };
  const elements = [];
  for (const s of document.querySelectorAll('script')) {
    if (s.src) {
      elements.push(s.src);
    } else if (s.textContent.trim() !== '') {
      out.push({url: '', content: s.textContent, type: 'inline'});
    }
  }
  for (const src of elements) await grab(src, 'external');
  for (const e of performance.getEntriesByType('resource')) {
    if (e.initiatorType === 'script') await grab(e.name, 'dynamic');
  }
  return out;
})()`

// collectedScript is one entry returned by collectorJS.
type collectedScript struct {
	URL     string `json:"url"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

// Harvester collects the scripts of a live page with a headless browser. It
// only gathers sources; analysis happens elsewhere.
type Harvester struct {
	logger *zap.Logger
	cfg    config.BrowserConfig
}

// NewHarvester creates a harvester for the given browser settings.
func NewHarvester(logger *zap.Logger, cfg config.BrowserConfig) *Harvester {
	return &Harvester{
		logger: logger.Named("harvester"),
		cfg:    cfg,
	}
}

// Harvest navigates to pageURL in a fresh browser and returns the scripts the
// page loaded.
func (h *Harvester) Harvest(ctx context.Context, pageURL string) ([]schemas.ScriptSource, error) {
	base, err := url.Parse(pageURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid page URL %q", pageURL)
	}

	var scope discovery.ScopeManager
	if h.cfg.SameSiteOnly {
		sm, err := discovery.NewBasicScopeManager(pageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to build harvest scope: %w", err)
		}
		scope = sm
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOptions(h.cfg)...)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	logger := h.logger.With(zap.String("page", pageURL))
	logger.Info("Harvesting scripts from page")
	start := time.Now()

	navTimeout := h.cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 60 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(taskCtx, navTimeout)
	defer navCancel()

	if err := chromedp.Run(navCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	); err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("navigation timed out after %s: %w", navTimeout, err)
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("navigation canceled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("navigation failed: %w", err)
	}

	var (
		collected []collectedScript
		finalURL  string
		dom       string
	)
	err = chromedp.Run(taskCtx,
		chromedp.Sleep(h.cfg.PostLoadWait),
		chromedp.Evaluate(collectorJS, &collected, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &dom, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("harvest canceled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("failed to collect scripts: %w", err)
	}

	if finalURL != "" {
		if u, err := url.Parse(finalURL); err == nil && u.Host != "" {
			base = u
		}
	}

	var domInline []schemas.ScriptSource
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(dom))
	if err != nil {
		logger.Warn("Could not re-read final DOM; relying on the in-page collector only", zap.Error(err))
	} else {
		domInline = discovery.InlineScriptsFromDocument(base.String(), doc)
	}

	sources := normalize(base, collected, domInline)
	if scope != nil {
		var dropped []string
		sources, dropped = discovery.FilterInScope(scope, sources)
		for _, d := range dropped {
			logger.Debug("Dropped out-of-scope script", zap.String("script", d), zap.String("scope", scope.GetRootDomain()))
		}
	}

	logger.Info("Harvest complete",
		zap.Int("scripts", len(sources)),
		zap.Duration("duration", time.Since(start)),
	)
	return sources, nil
}

// normalize resolves script URLs against base, drops duplicates and empty
// contents, and names inline blocks base#script-N. Inline blocks found only in
// the final DOM (injected late) are appended after the collector's.
func normalize(base *url.URL, collected []collectedScript, domInline []schemas.ScriptSource) []schemas.ScriptSource {
	var (
		out        []schemas.ScriptSource
		seenURL    = map[string]bool{}
		seenInline = map[string]bool{}
		inlineN    int
	)
	addInline := func(content string) {
		if strings.TrimSpace(content) == "" || seenInline[content] {
			return
		}
		seenInline[content] = true
		inlineN++
		out = append(out, schemas.ScriptSource{
			URL:     discovery.InlineScriptName(base.String(), inlineN),
			Content: content,
			Type:    schemas.ScriptInline,
		})
	}

	for _, c := range collected {
		typ, err := schemas.ParseScriptType(c.Type)
		if err != nil {
			continue
		}
		if typ == schemas.ScriptInline {
			addInline(c.Content)
			continue
		}
		if strings.TrimSpace(c.Content) == "" {
			continue
		}
		ref, err := url.Parse(c.URL)
		if err != nil {
			continue
		}
		resolved := base.ResolveReference(ref).String()
		if seenURL[resolved] {
			continue
		}
		seenURL[resolved] = true
		out = append(out, schemas.ScriptSource{URL: resolved, Content: c.Content, Type: typ})
	}

	for _, s := range domInline {
		addInline(s.Content)
	}
	return out
}

// execOptions builds the allocator options from configuration.
func execOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}

	// Args accept both boolean flags and key=value pairs.
	for _, arg := range cfg.Args {
		arg = strings.TrimLeft(arg, "-")
		key, value, found := strings.Cut(arg, "=")
		if found {
			opts = append(opts, chromedp.Flag(key, value))
		} else {
			opts = append(opts, chromedp.Flag(key, true))
		}
	}
	return opts
}

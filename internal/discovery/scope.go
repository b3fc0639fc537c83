// internal/discovery/scope.go
package discovery

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/scalpel-jsrecon/api/schemas"
)

// ScopeManager decides which harvested scripts belong to the page's site.
type ScopeManager interface {
	IsInScope(u *url.URL) bool
	GetRootDomain() string
}

// BasicScopeManager scopes by registrable domain (eTLD+1), subdomains included.
type BasicScopeManager struct {
	rootDomain string
}

// NewBasicScopeManager derives the scope from the page URL.
func NewBasicScopeManager(pageURL string) (*BasicScopeManager, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, err
	}

	hostname := u.Hostname()
	if hostname == "" {
		return nil, fmt.Errorf("page URL must have a hostname: %s", pageURL)
	}

	// IPs and single-label hosts (localhost) have no registrable domain; the
	// scope is the host itself.
	domain := hostname
	if net.ParseIP(hostname) == nil {
		// The Public Suffix List handles domains like 'example.co.uk' correctly.
		if etld1, err := publicsuffix.EffectiveTLDPlusOne(hostname); err == nil {
			domain = etld1
		}
	}

	return &BasicScopeManager{rootDomain: strings.ToLower(domain)}, nil
}

// IsInScope reports whether u is the root domain or one of its subdomains.
func (s *BasicScopeManager) IsInScope(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if host == s.rootDomain {
		return true
	}
	// The leading dot keeps "notexample.com" out of scope for "example.com".
	return strings.HasSuffix(host, "."+s.rootDomain)
}

// GetRootDomain returns the eTLD+1 defining the scope.
func (s *BasicScopeManager) GetRootDomain() string {
	return s.rootDomain
}

// FilterInScope drops external and dynamic scripts outside the scope. Inline
// scripts are part of the page itself and are always kept, as are sources
// whose URL cannot be parsed into a host.
func FilterInScope(scope ScopeManager, sources []schemas.ScriptSource) (kept []schemas.ScriptSource, dropped []string) {
	kept = make([]schemas.ScriptSource, 0, len(sources))
	for _, src := range sources {
		if src.Type == schemas.ScriptInline {
			kept = append(kept, src)
			continue
		}
		u, err := url.Parse(src.URL)
		if err != nil || u.Hostname() == "" || scope.IsInScope(u) {
			kept = append(kept, src)
			continue
		}
		dropped = append(dropped, src.URL)
	}
	return kept, dropped
}

// Package originguard rejects browser requests whose Origin or Referer does not belong to the storefront.
package originguard

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/hanko-field/storefront/internal/platform/httpx"
	"github.com/hanko-field/storefront/internal/platform/requestctx"
)

// MatchMode selects how a header value is compared against the allow-list.
type MatchMode string

const (
	// MatchContains accepts a header when any allow-listed entry occurs as a substring.
	// It is permissive: "https://evil.example/?shop.example.com" passes for "shop.example.com".
	MatchContains MatchMode = "contains"
	// MatchExact compares scheme and host of the header against allow-listed bases, and hostnames
	// against allow-listed hosts (including their subdomains).
	MatchExact MatchMode = "exact"
)

const localDevOrigin = "http://localhost:3000"

// Config describes the deployment the policy protects.
type Config struct {
	SiteURL      string
	AllowedHosts []string
	Mode         MatchMode
	// Development disables the check entirely.
	Development bool
}

// Policy decides whether a request's Origin/Referer headers are acceptable.
type Policy struct {
	mode        MatchMode
	development bool
	bases       []string
	hosts       []string
}

// NewPolicy builds the allow-list: the site URL, its normalized base, localhost, and the configured hosts.
func NewPolicy(cfg Config) *Policy {
	p := &Policy{mode: cfg.Mode, development: cfg.Development}
	if p.mode != MatchExact {
		p.mode = MatchContains
	}

	addBase := func(raw string) {
		if base, host := normalize(raw); base != "" {
			p.bases = appendUnique(p.bases, base)
			p.hosts = appendUnique(p.hosts, host)
		}
	}
	if site := strings.TrimRight(strings.TrimSpace(cfg.SiteURL), "/"); site != "" {
		addBase(site)
	}
	addBase(localDevOrigin)
	p.hosts = appendUnique(p.hosts, "localhost")
	for _, host := range cfg.AllowedHosts {
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "" {
			continue
		}
		if strings.Contains(host, "://") {
			addBase(host)
			continue
		}
		p.hosts = appendUnique(p.hosts, host)
	}
	return p
}

// Allowed reports whether the request may proceed. Absent headers are permissive; when at least
// one of Origin/Referer is present, at least one present header must match.
func (p *Policy) Allowed(r *http.Request) bool {
	if p == nil || p.development {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	referer := strings.TrimSpace(r.Header.Get("Referer"))
	if origin == "" && referer == "" {
		return true
	}
	return (origin != "" && p.matches(origin)) || (referer != "" && p.matches(referer))
}

func (p *Policy) matches(value string) bool {
	if p.mode == MatchContains {
		lowered := strings.ToLower(value)
		for _, entry := range p.bases {
			if strings.Contains(lowered, entry) {
				return true
			}
		}
		for _, entry := range p.hosts {
			if strings.Contains(lowered, entry) {
				return true
			}
		}
		return false
	}

	base, host := normalize(value)
	if base == "" {
		return false
	}
	for _, allowed := range p.bases {
		if base == allowed {
			return true
		}
	}
	hostname := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		hostname = h
	}
	for _, allowed := range p.hosts {
		if hostname == allowed || strings.HasSuffix(hostname, "."+allowed) {
			return true
		}
	}
	return false
}

// Middleware rejects disallowed requests with 403 before they reach next.
func (p *Policy) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !p.Allowed(r) {
			requestctx.Logger(r.Context()).Warn("origin rejected",
				zap.String("origin", sanitize(r.Header.Get("Origin"))),
				zap.String("referer", sanitize(r.Header.Get("Referer"))),
			)
			httpx.WriteError(r.Context(), w, httpx.NewError("forbidden_origin", "許可されていないオリジンからのリクエストです", http.StatusForbidden))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// normalize returns "scheme://host[:port]" and "host[:port]" in lower case, or empty strings
// when raw is not an absolute URL.
func normalize(raw string) (string, string) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", ""
	}
	host := strings.ToLower(u.Host)
	return strings.ToLower(u.Scheme) + "://" + host, host
}

func appendUnique(values []string, value string) []string {
	for _, existing := range values {
		if existing == value {
			return values
		}
	}
	return append(values, value)
}

func sanitize(value string) string {
	value = strings.NewReplacer("\n", " ", "\r", " ").Replace(value)
	if len(value) > 200 {
		value = value[:200]
	}
	return value
}

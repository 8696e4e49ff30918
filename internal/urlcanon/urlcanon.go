// Package urlcanon reduces links to a comparable form for fingerprinting and
// same-publisher checks.
package urlcanon

import (
	"net/url"
	"sort"
	"strings"
)

// TrackingQueryKeys are dropped from every canonical URL. Any key starting with
// "utm_" is dropped as well.
var TrackingQueryKeys = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref":     {},
	"ref_src": {},
	"source":  {},
}

// Canonicalize returns host (lowercase, no "www."), path (no trailing slash) and
// a sorted query without tracking parameters. It never fails: input that cannot
// be parsed as a URL is reduced by plain string stripping instead. Links with
// an opaque scheme such as "mailto:" keep the scheme and lose only the fragment.
func Canonicalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if scheme, rest, ok := opaqueScheme(trimmed); ok {
		if idx := strings.IndexByte(rest, '#'); idx >= 0 {
			rest = rest[:idx]
		}
		return scheme + ":" + rest
	}

	parsed, ok := parse(trimmed)
	if !ok {
		return manualStrip(trimmed)
	}

	host := normalizeHost(parsed.Hostname())
	if port := parsed.Port(); port != "" && port != "80" && port != "443" {
		host = host + ":" + port
	}

	path := parsed.EscapedPath()
	for strings.Contains(path, "//") {
		path = strings.ReplaceAll(path, "//", "/")
	}
	path = strings.TrimRight(path, "/")

	var b strings.Builder
	b.Grow(len(trimmed))
	b.WriteString(host)
	b.WriteString(path)
	if query := canonicalQuery(parsed.Query()); query != "" {
		b.WriteByte('?')
		b.WriteString(query)
	}
	return b.String()
}

// Host returns the normalized host of raw, or "" when no host can be resolved.
func Host(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if _, _, ok := opaqueScheme(trimmed); ok {
		return ""
	}
	parsed, ok := parse(trimmed)
	if !ok {
		return ""
	}
	return normalizeHost(parsed.Hostname())
}

func parse(raw string) (*url.URL, bool) {
	candidate := raw
	if !hasScheme(candidate) {
		candidate = "https://" + strings.TrimLeft(candidate, "/")
	}
	parsed, err := url.Parse(candidate)
	if err != nil {
		return nil, false
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return nil, false
	}
	return parsed, true
}

func hasScheme(raw string) bool {
	idx := strings.Index(raw, "://")
	if idx <= 0 {
		return false
	}
	for i, r := range raw[:idx] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

// opaqueScheme splits "scheme:rest" links that carry no authority, like
// mailto: or tel:. A colon followed by a digit is a port ("localhost:8080").
func opaqueScheme(raw string) (string, string, bool) {
	idx := strings.IndexByte(raw, ':')
	if idx <= 0 || strings.ContainsAny(raw[:idx], "/?#") {
		return "", "", false
	}
	for i, r := range raw[:idx] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-'):
		default:
			return "", "", false
		}
	}
	rest := raw[idx+1:]
	if strings.HasPrefix(rest, "//") || rest != "" && rest[0] >= '0' && rest[0] <= '9' {
		return "", "", false
	}
	return strings.ToLower(raw[:idx]), rest, true
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")
	return strings.TrimPrefix(host, "www.")
}

func canonicalQuery(values url.Values) string {
	if len(values) == 0 {
		return ""
	}
	for key := range values {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "utm_") {
			values.Del(key)
			continue
		}
		if _, ok := TrackingQueryKeys[lower]; ok {
			values.Del(key)
		}
	}
	if len(values) == 0 {
		return ""
	}
	for key := range values {
		sort.Strings(values[key])
	}
	// Encode sorts by key.
	return values.Encode()
}

func manualStrip(raw string) string {
	out := strings.ToLower(strings.TrimSpace(raw))
	if hasScheme(out) {
		out = out[strings.Index(out, "://")+3:]
	}
	if idx := strings.IndexByte(out, '#'); idx >= 0 {
		out = out[:idx]
	}
	out = strings.TrimPrefix(out, "www.")
	return strings.TrimRight(out, "/")
}

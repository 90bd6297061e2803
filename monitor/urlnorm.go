package monitor

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// NormalizeSiteURL normalizes a site URL for dedup comparison: lowercases
// scheme and host, removes the fragment, strips the trailing slash (except
// root), and sorts query params. Does NOT upgrade http to https (different
// servers, different resources).
func NormalizeSiteURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: empty URL", ErrInvalidSite)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSite, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidSite, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidSite)
	}

	parsed.Scheme = scheme
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""
	parsed.Path = strings.TrimRight(parsed.Path, "/")

	// Sort query params by key for stable comparison.
	if parsed.RawQuery != "" {
		params := parsed.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf strings.Builder
		for i, k := range keys {
			vals := params[k]
			sort.Strings(vals)
			for j, v := range vals {
				if i > 0 || j > 0 {
					buf.WriteByte('&')
				}
				buf.WriteString(url.QueryEscape(k))
				buf.WriteByte('=')
				buf.WriteString(url.QueryEscape(v))
			}
		}
		parsed.RawQuery = buf.String()
	}

	return parsed.String(), nil
}

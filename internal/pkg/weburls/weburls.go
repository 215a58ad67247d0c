// Package weburls extracts referrer domains, page paths and UTM campaign
// parameters from raw URL strings. Extraction is best-effort and never
// returns an error: malformed input yields empty fields.
package weburls

import (
	"net/url"
	"strings"
)

// UTMParams holds the five standard UTM campaign fields.
// Absent or unparsable fields are empty strings.
type UTMParams struct {
	Source   string
	Medium   string
	Campaign string
	Term     string
	Content  string
}

// ExtractDomain returns the lowercased hostname of a URL with a leading
// "www." stripped, or "" when the URL is absent or unparsable.
func ExtractDomain(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	hostname := strings.ToLower(parsed.Hostname())
	if hostname == "" {
		return ""
	}

	return strings.TrimPrefix(hostname, "www.")
}

// ExtractPath returns the path component of a URL, defaulting to "/" when
// the URL parses but has no path. Unparsable input yields "".
func ExtractPath(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	if parsed.Path == "" {
		return "/"
	}
	return parsed.Path
}

// ExtractUTMParams pulls the standard UTM query parameters out of a URL.
// A URL that fails to parse yields all-empty fields; a URL with only some
// of the parameters present yields the ones it has.
func ExtractUTMParams(rawURL string) UTMParams {
	if rawURL == "" {
		return UTMParams{}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return UTMParams{}
	}

	query := parsed.Query()
	return UTMParams{
		Source:   query.Get("utm_source"),
		Medium:   query.Get("utm_medium"),
		Campaign: query.Get("utm_campaign"),
		Term:     query.Get("utm_term"),
		Content:  query.Get("utm_content"),
	}
}

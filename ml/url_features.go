package ml

import (
	"net"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/publicsuffix"
)

// URLFeatures is the lexical feature vector derived from a single URL.
type URLFeatures struct {
	URLLength         int  `json:"url_length"`
	HasIP             bool `json:"has_ip"`
	NumDots           int  `json:"num_dots"`
	NumHyphens        int  `json:"num_hyphens"`
	NumAt             int  `json:"num_at"`
	NumQuestion       int  `json:"num_question"`
	NumEqual          int  `json:"num_equal"`
	SubdomainCount    int  `json:"subdomain_count"`
	SuspiciousKeyword bool `json:"suspicious_keyword"`
}

const (
	FeatureURLLength         = "url_length"
	FeatureHasIP             = "has_ip"
	FeatureNumDots           = "num_dots"
	FeatureNumHyphens        = "num_hyphens"
	FeatureNumAt             = "num_at"
	FeatureNumQuestion       = "num_question"
	FeatureNumEqual          = "num_equal"
	FeatureSubdomainCount    = "subdomain_count"
	FeatureSuspiciousKeyword = "suspicious_keyword"
)

// Matches a dotted quad anywhere in the string, octet range is not checked.
var ipPattern = regexp.MustCompile(`(\d{1,3}\.){3}\d{1,3}`)

var schemePattern = regexp.MustCompile(`^[A-Za-z0-9+\-.]+://`)

var suspiciousKeywords = []string{
	"login", "secure", "account", "update", "free", "verify", "bank", "confirm", "signin",
}

// FeatureNames returns the names in the order ExtractURLFeatures emits them.
func FeatureNames() []string {
	return []string{
		FeatureURLLength,
		FeatureHasIP,
		FeatureNumDots,
		FeatureNumHyphens,
		FeatureNumAt,
		FeatureNumQuestion,
		FeatureNumEqual,
		FeatureSubdomainCount,
		FeatureSuspiciousKeyword,
	}
}

// ExtractURLFeatures never fails; an empty string yields a zero vector.
func ExtractURLFeatures(rawURL string) URLFeatures {
	return URLFeatures{
		URLLength:         utf8.RuneCountInString(rawURL),
		HasIP:             ipPattern.MatchString(rawURL),
		NumDots:           strings.Count(rawURL, "."),
		NumHyphens:        strings.Count(rawURL, "-"),
		NumAt:             strings.Count(rawURL, "@"),
		NumQuestion:       strings.Count(rawURL, "?"),
		NumEqual:          strings.Count(rawURL, "="),
		SubdomainCount:    countSubdomains(hostOf(rawURL)),
		SuspiciousKeyword: containsSuspiciousKeyword(rawURL),
	}
}

// Value returns the named feature as a float. Unknown names report false.
func (f URLFeatures) Value(name string) (float64, bool) {
	switch name {
	case FeatureURLLength:
		return float64(f.URLLength), true
	case FeatureHasIP:
		return boolToFloat(f.HasIP), true
	case FeatureNumDots:
		return float64(f.NumDots), true
	case FeatureNumHyphens:
		return float64(f.NumHyphens), true
	case FeatureNumAt:
		return float64(f.NumAt), true
	case FeatureNumQuestion:
		return float64(f.NumQuestion), true
	case FeatureNumEqual:
		return float64(f.NumEqual), true
	case FeatureSubdomainCount:
		return float64(f.SubdomainCount), true
	case FeatureSuspiciousKeyword:
		return boolToFloat(f.SuspiciousKeyword), true
	default:
		return 0, false
	}
}

func (f *URLFeatures) set(name string, value float64) bool {
	switch name {
	case FeatureURLLength:
		f.URLLength = int(value)
	case FeatureHasIP:
		f.HasIP = value != 0
	case FeatureNumDots:
		f.NumDots = int(value)
	case FeatureNumHyphens:
		f.NumHyphens = int(value)
	case FeatureNumAt:
		f.NumAt = int(value)
	case FeatureNumQuestion:
		f.NumQuestion = int(value)
	case FeatureNumEqual:
		f.NumEqual = int(value)
	case FeatureSubdomainCount:
		f.SubdomainCount = int(value)
	case FeatureSuspiciousKeyword:
		f.SuspiciousKeyword = value != 0
	default:
		return false
	}
	return true
}

func containsSuspiciousKeyword(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, kw := range suspiciousKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// hostOf pulls the hostname out of a loosely formatted URL without
// requiring it to parse as a valid net/url.URL.
func hostOf(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if loc := schemePattern.FindStringIndex(s); loc != nil {
		s = s[loc[1]:]
	} else {
		s = strings.TrimPrefix(s, "//")
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndex(s, "@"); i >= 0 {
		s = s[i+1:]
	}
	if strings.HasPrefix(s, "[") {
		// bracketed IPv6 literal
		if i := strings.Index(s, "]"); i >= 0 {
			return strings.ToLower(s[1:i])
		}
	}
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, ".")
	return strings.ToLower(s)
}

// countSubdomains counts the labels in front of the registrable domain.
// Only ICANN suffixes count as suffixes, so hosting platforms such as
// github.io or blogspot.com are treated as ordinary domains.
func countSubdomains(host string) int {
	if host == "" || net.ParseIP(host) != nil {
		return 0
	}
	labels := len(strings.Split(host, "."))
	if suffix := icannSuffix(host); suffix != "" {
		labels -= len(strings.Split(suffix, "."))
	}
	// The remaining leftmost label is the registrable domain itself.
	if labels <= 1 {
		return 0
	}
	return labels - 1
}

// icannSuffix returns the ICANN public suffix of host, skipping private
// entries of the list. It is empty for hosts under an unlisted TLD.
func icannSuffix(host string) string {
	suffix, icann := publicsuffix.PublicSuffix(host)
	for !icann {
		i := strings.Index(suffix, ".")
		if i < 0 {
			return ""
		}
		suffix, icann = publicsuffix.PublicSuffix(suffix[i+1:])
	}
	return suffix
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

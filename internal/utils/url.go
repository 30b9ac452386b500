package utils

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ParseDocumentURL parses rawURL and requires an absolute http(s) URL with a host.
func ParseDocumentURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("missing host")
	}
	return u, nil
}

// IsValidURL reports whether rawURL can be fetched.
func IsValidURL(rawURL string) bool {
	_, err := ParseDocumentURL(rawURL)
	return err == nil
}

// DocumentID derives the stable document identifier from a source URL: the basename of its
// path, with query and fragment ignored. Returns "" when the URL has no usable basename.
func DocumentID(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}

	p := u.EscapedPath()
	if unescaped, err := url.PathUnescape(p); err == nil {
		p = unescaped
	}

	base := path.Base(p)
	switch base {
	case ".", "..", "/", "":
		return ""
	}
	return base
}

// ResolveReference resolves href against base, the way a browser exposes `link.href`.
func ResolveReference(base *url.URL, href string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

package discovery

import (
	"fmt"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/net/publicsuffix"
)

// browserCookie is one entry of a browser cookie export (the format written by
// headless browser tooling: page.cookies()).
type browserCookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// LoadCookies reads a browser cookie export. A missing file is ErrAuthRequired.
func LoadCookies(path string) ([]*http.Cookie, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %q not found", ErrAuthRequired, path)
		}
		return nil, fmt.Errorf("%w: read %q: %v", ErrAuthRequired, path, err)
	}

	var exported []browserCookie
	if err := json.Unmarshal(data, &exported); err != nil {
		return nil, fmt.Errorf("%w: parse %q: %v", ErrAuthRequired, path, err)
	}

	cookies := make([]*http.Cookie, 0, len(exported))
	for _, c := range exported {
		if c.Name == "" || c.Domain == "" {
			continue
		}
		cookies = append(cookies, c.toHTTP())
	}
	if len(cookies) == 0 {
		return nil, fmt.Errorf("%w: %q has no usable cookies", ErrAuthRequired, path)
	}
	return cookies, nil
}

func (c browserCookie) toHTTP() *http.Cookie {
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
	}
	if hc.Path == "" {
		hc.Path = "/"
	}
	// session cookies are exported with expires -1
	if c.Expires > 0 {
		sec, frac := math.Modf(c.Expires)
		hc.Expires = time.Unix(int64(sec), int64(frac*1e9))
	}
	switch strings.ToLower(c.SameSite) {
	case "strict":
		hc.SameSite = http.SameSiteStrictMode
	case "lax":
		hc.SameSite = http.SameSiteLaxMode
	case "none":
		hc.SameSite = http.SameSiteNoneMode
	}
	return hc
}

// newCookieJar places every cookie under the host named by its domain.
func newCookieJar(cookies []*http.Cookie) (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}

	for _, c := range cookies {
		host := strings.TrimPrefix(c.Domain, ".")
		scheme := "http"
		if c.Secure {
			scheme = "https"
		}
		jar.SetCookies(&url.URL{Scheme: scheme, Host: host, Path: c.Path}, []*http.Cookie{c})
	}
	return jar, nil
}

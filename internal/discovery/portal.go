package discovery

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/imroc/req/v3"
	"github.com/openmined/docsync/internal/utils"
	"github.com/openmined/docsync/internal/version"
)

const DefaultPageTimeout = 30 * time.Second

// PortalProvider opens sessions against a documentation portal by replaying an exported
// browser cookie file over plain HTTP.
type PortalProvider struct {
	cookieFile string
	timeout    time.Duration
}

func NewPortalProvider(cookieFile string, timeout time.Duration) *PortalProvider {
	if timeout <= 0 {
		timeout = DefaultPageTimeout
	}
	return &PortalProvider{cookieFile: cookieFile, timeout: timeout}
}

func (p *PortalProvider) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cookies, err := LoadCookies(p.cookieFile)
	if err != nil {
		return nil, err
	}

	jar, err := newCookieJar(cookies)
	if err != nil {
		return nil, fmt.Errorf("%w: cookie jar: %v", ErrDiscoveryFailed, err)
	}

	client := req.C().
		SetUserAgent(version.UserAgent()).
		SetTimeout(p.timeout).
		SetCookieJar(jar)

	slog.Debug("discovery session opened", "cookies", len(cookies), "file", p.cookieFile)
	return &portalSession{client: client}, nil
}

type portalSession struct {
	client *req.Client
	closed atomic.Bool
}

func (s *portalSession) Sections(ctx context.Context, targetURL, pattern string) ([]string, error) {
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty section pattern", ErrInvalidSelection)
	}

	doc, base, err := s.page(ctx, targetURL)
	if err != nil {
		return nil, err
	}

	selector := fmt.Sprintf("a[href*='%s']", strings.ReplaceAll(pattern, "'", `\'`))
	seen := mapset.NewThreadUnsafeSet[string]()
	sections := make([]string, 0)

	doc.Find(selector).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		abs, err := utils.ResolveReference(base, href)
		if err != nil {
			slog.Debug("discovery skip section href", "href", href, "error", err)
			return
		}
		if seen.Add(abs) {
			sections = append(sections, abs)
		}
	})

	if len(sections) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSectionsFound, targetURL)
	}
	return sections, nil
}

func (s *portalSession) ResolveDocument(ctx context.Context, sectionURL, selector string) (*DocumentLink, error) {
	if selector == "" {
		selector = DefaultDocumentSelector
	}

	doc, base, err := s.page(ctx, sectionURL)
	if err != nil {
		return nil, err
	}

	href, ok := doc.Find(selector).First().Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoDocumentLink, sectionURL)
	}

	abs, err := utils.ResolveReference(base, href)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: bad href %q: %v", ErrDiscoveryFailed, sectionURL, href, err)
	}

	return &DocumentLink{
		ID:         utils.DocumentID(abs),
		URL:        abs,
		SectionURL: sectionURL,
	}, nil
}

func (s *portalSession) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.client.GetClient().CloseIdleConnections()
	return nil
}

// page loads pageURL and returns its document with the URL links resolve against
// (the final URL after redirects).
func (s *portalSession) page(ctx context.Context, pageURL string) (*goquery.Document, *url.URL, error) {
	if s.closed.Load() {
		return nil, nil, ErrSessionClosed
	}

	base, err := utils.ParseDocumentURL(pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrDiscoveryFailed, pageURL, err)
	}

	resp, err := s.client.R().SetContext(ctx).Get(pageURL)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: get %s: %v", ErrDiscoveryFailed, pageURL, err)
	}
	if !resp.IsSuccessState() {
		return nil, nil, fmt.Errorf("%w: get %s: status %d", ErrDiscoveryFailed, pageURL, resp.GetStatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Bytes()))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: parse %s: %v", ErrDiscoveryFailed, pageURL, err)
	}

	if resp.Response != nil && resp.Response.Request != nil {
		base = resp.Response.Request.URL
	}
	return doc, base, nil
}

// Package discovery finds the documents published by a documentation portal.
//
// The sync engine only depends on SessionProvider and Session. PortalProvider is the
// bundled implementation: it replays an exported browser session (cookies) over plain
// HTTP and queries the returned HTML with goquery.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mapset "github.com/deckarep/golang-set/v2"
)

// DefaultDocumentSelector matches the PDF download affordance on a section page.
const DefaultDocumentSelector = "#pdf-download a"

var (
	ErrAuthRequired     = errors.New("discovery: session material missing")
	ErrDiscoveryFailed  = errors.New("discovery: failed")
	ErrNoSectionsFound  = errors.New("discovery: no sections found")
	ErrNoDocumentLink   = errors.New("discovery: no document link on section page")
	ErrSessionClosed    = errors.New("discovery: session closed")
	ErrInvalidSelection = errors.New("discovery: invalid selector or pattern")
)

// DocumentLink is a downloadable document found on a section page.
type DocumentLink struct {
	ID         string
	URL        string
	SectionURL string
}

// SessionProvider acquires an authenticated browsing session.
// Open fails with ErrAuthRequired, before any network I/O, when no session material exists.
type SessionProvider interface {
	Open(ctx context.Context) (Session, error)
}

// Session is an acquired browsing session. Callers must Close it on every exit path.
type Session interface {
	// Sections returns the absolute URLs of links on targetURL whose href contains pattern,
	// deduplicated by URL in first seen order. An empty result is ErrNoSectionsFound.
	Sections(ctx context.Context, targetURL, pattern string) ([]string, error)

	// ResolveDocument returns the document link matched by selector on sectionURL,
	// or ErrNoDocumentLink when the page has none.
	ResolveDocument(ctx context.Context, sectionURL, selector string) (*DocumentLink, error)

	Close() error
}

// DiscoverDocumentLinks resolves every section of targetURL into (document id, URL) pairs
// with set semantics on the URL. Sections without a document are skipped with a warning.
func DiscoverDocumentLinks(ctx context.Context, s Session, targetURL, pattern, selector string) ([]DocumentLink, error) {
	sections, err := s.Sections(ctx, targetURL, pattern)
	if err != nil {
		return nil, err
	}

	seen := mapset.NewThreadUnsafeSet[string]()
	links := make([]DocumentLink, 0, len(sections))
	for _, section := range sections {
		link, err := s.ResolveDocument(ctx, section, selector)
		if errors.Is(err, ErrNoDocumentLink) {
			slog.Warn("discovery no document link", "section", section)
			continue
		} else if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Error("discovery resolve section", "section", section, "error", err)
			continue
		}
		if !seen.Add(link.URL) {
			continue
		}
		links = append(links, *link)
	}

	if len(links) == 0 {
		return nil, fmt.Errorf("%w: %d sections, no documents", ErrNoSectionsFound, len(sections))
	}
	return links, nil
}

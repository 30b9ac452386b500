package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/discovery"
	"github.com/openmined/docsync/internal/fetcher"
	"github.com/openmined/docsync/internal/fingerprint"
	"github.com/openmined/docsync/internal/store"
	"golang.org/x/sync/errgroup"
)

// runState is owned by the goroutine running Run. Workers never touch it.
type runState struct {
	log    *slog.Logger
	result *RunResult
	old    *store.FingerprintStore
	next   *store.FingerprintStore
	seen   map[string]struct{}
}

// resolved is the outcome of resolving one section page.
type resolved struct {
	section string
	link    *discovery.DocumentLink
	err     error
}

// download is a document fetched and fingerprinted, or the step that failed.
type download struct {
	link        discovery.DocumentLink
	file        *fetcher.LocalFile
	fingerprint string
	observedAt  time.Time
	stage       Stage
	err         error
}

func (e *Engine) process(ctx context.Context, session discovery.Session, rs *runState, sections []string) error {
	if e.workers <= 1 {
		for _, section := range sections {
			if err := ctx.Err(); err != nil {
				return err
			}
			r := e.resolve(ctx, session, section)
			link, ok := e.accept(rs, r)
			if !ok {
				continue
			}
			e.commit(ctx, rs, e.download(ctx, *link))
		}
		return ctx.Err()
	}

	// resolve everything, then fetch everything, then commit in discovery order
	res := make([]resolved, len(sections))
	e.parallel(ctx, len(sections), func(i int) {
		res[i] = e.resolve(ctx, session, sections[i])
	})
	if err := ctx.Err(); err != nil {
		return err
	}

	links := make([]discovery.DocumentLink, 0, len(res))
	for _, r := range res {
		if link, ok := e.accept(rs, r); ok {
			links = append(links, *link)
		}
	}

	// documents sharing an id share a destination file; only the first of them is
	// fetched concurrently, the others are fetched while committing
	downloads := make([]*download, len(links))
	ids := make(map[string]struct{}, len(links))
	concurrent := make([]int, 0, len(links))
	for i, link := range links {
		if _, dup := ids[link.ID]; dup {
			continue
		}
		ids[link.ID] = struct{}{}
		concurrent = append(concurrent, i)
	}
	e.parallel(ctx, len(concurrent), func(j int) {
		i := concurrent[j]
		downloads[i] = e.download(ctx, links[i])
	})
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, d := range downloads {
		if d == nil {
			d = e.download(ctx, links[i])
		}
		e.commit(ctx, rs, d)
	}
	return ctx.Err()
}

func (e *Engine) parallel(ctx context.Context, n int, fn func(i int)) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	g.Wait()
}

func (e *Engine) resolve(ctx context.Context, session discovery.Session, section string) resolved {
	link, err := session.ResolveDocument(ctx, section, e.target.DocumentSelector)
	return resolved{section: section, link: link, err: err}
}

// accept applies the outcome of a section resolution to the run and reports whether the
// link is a new document to download. Links are deduplicated by URL.
func (e *Engine) accept(rs *runState, r resolved) (*discovery.DocumentLink, bool) {
	switch {
	case errors.Is(r.err, discovery.ErrNoDocumentLink):
		rs.log.Warn("sync no document link on section", "section", r.section)
		rs.result.Skipped = append(rs.result.Skipped, r.section)
		return nil, false
	case r.err != nil:
		rs.log.Error("sync resolve section", "section", r.section, "error", r.err)
		rs.result.addError(r.section, "", StageResolve, r.err)
		return nil, false
	}

	if _, dup := rs.seen[r.link.URL]; dup {
		rs.log.Debug("sync duplicate document link", "url", r.link.URL, "section", r.section)
		return nil, false
	}
	rs.seen[r.link.URL] = struct{}{}
	rs.result.TotalDiscovered++
	rs.log.Info("sync document link found", "id", r.link.ID, "url", r.link.URL)
	return r.link, true
}

// download fetches and fingerprints one document. It is safe to call concurrently.
func (e *Engine) download(ctx context.Context, link discovery.DocumentLink) *download {
	d := &download{link: link}

	file, err := e.deps.Fetcher.Fetch(ctx, link.URL, e.target.OutputDir)
	if err != nil {
		d.stage, d.err = StageFetch, err
		return d
	}
	d.file = file

	fp, err := fingerprint.ComputeFile(file.Path)
	if err != nil {
		d.stage, d.err = StageFingerprint, err
		return d
	}
	d.fingerprint = fp
	d.observedAt = e.now()
	return d
}

// commit classifies a download and records it. Failures stop at this document.
func (e *Engine) commit(ctx context.Context, rs *runState, d *download) {
	id := d.link.ID
	if d.err != nil {
		rs.log.Error("sync document failed", "id", id, "url", d.link.URL, "stage", d.stage, "error", d.err)
		rs.result.addError(d.link.URL, id, d.stage, d.err)
		return
	}

	if err := rs.next.Upsert(id, d.fingerprint, d.observedAt); err != nil {
		rs.log.Error("sync document not recorded", "id", id, "url", d.link.URL, "error", err)
		rs.result.addError(d.link.URL, id, StageRecord, err)
		return
	}
	rs.result.Downloaded = append(rs.result.Downloaded, id)
	rs.result.BytesDownloaded += d.file.Size
	rs.log.Info("sync document downloaded", "id", id, "path", d.file.Path, "checksum", d.fingerprint)
	e.persistOne(rs, d.link, d.fingerprint, d.observedAt)

	if rs.result.Mode == ColdStart {
		rs.result.New = append(rs.result.New, id)
		e.mirror(ctx, rs, d.link, d.file.Path, d.fingerprint)
		return
	}

	prev, ok := rs.old.Get(id)
	switch {
	case !ok:
		rs.result.New = append(rs.result.New, id)
		e.mirror(ctx, rs, d.link, d.file.Path, d.fingerprint)

	case prev.Fingerprint == d.fingerprint:
		rs.result.Unchanged = append(rs.result.Unchanged, id)

	default:
		rs.log.Info("sync document changed", "id", id, "previous", prev.Fingerprint, "current", d.fingerprint)
		file, err := e.deps.Fetcher.Fetch(ctx, d.link.URL, e.target.OutputDir)
		if err != nil {
			rs.log.Error("sync changed document refetch", "id", id, "url", d.link.URL, "error", err)
			rs.result.addError(d.link.URL, id, StageRefetch, err)
			return
		}
		rs.result.BytesDownloaded += file.Size
		rs.result.Changed = append(rs.result.Changed, id)

		fp := d.fingerprint
		if e.target.WriteMode == config.PerDocumentImmediate {
			if fp, err = fingerprint.ComputeFile(file.Path); err != nil {
				rs.log.Error("sync changed document fingerprint", "id", id, "error", err)
				rs.result.addError(d.link.URL, id, StageFingerprint, err)
				return
			}
			e.persistOne(rs, d.link, fp, e.now())
		}
		e.mirror(ctx, rs, d.link, file.Path, fp)
	}
}

// persistOne writes a single observation straight into the persisted store when the
// target uses per-document writes.
func (e *Engine) persistOne(rs *runState, link discovery.DocumentLink, fp string, at time.Time) {
	if e.target.WriteMode != config.PerDocumentImmediate {
		return
	}
	_, err := e.store.Update(func(s *store.FingerprintStore) error {
		return s.Upsert(link.ID, fp, at)
	})
	if err != nil {
		rs.log.Error("sync checksum not saved", "id", link.ID, "store", e.store.Path(), "error", err)
		rs.result.addError(link.URL, link.ID, StagePersist, err)
		return
	}
	rs.log.Debug("sync checksum saved", "id", link.ID, "store", e.store.Path())
}

func (e *Engine) mirror(ctx context.Context, rs *runState, link discovery.DocumentLink, path, fp string) {
	if e.deps.Mirror == nil {
		return
	}
	if err := e.deps.Mirror.Put(ctx, e.target.Name, link.ID, path, fp); err != nil {
		rs.log.Error("sync mirror upload", "id", link.ID, "error", err)
		rs.result.addError(link.URL, link.ID, StageMirror, err)
	}
}

// Package ingest drives the download of all three entity kinds: paging
// through list endpoints, discovering object identifiers, and scheduling the
// missing object-detail fetches through the rate-limited client.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/powerhouse-kz/powerhouse/internal/archive"
	"github.com/powerhouse-kz/powerhouse/internal/common"
	"github.com/powerhouse-kz/powerhouse/internal/eoz"
	"github.com/powerhouse-kz/powerhouse/internal/model"
)

// Fetcher is the subset of the API client the manager depends on.
type Fetcher interface {
	FetchPage(ctx context.Context, kind model.Kind, page int) (*eoz.PageResponse, error)
	FetchObject(ctx context.Context, kind model.Kind, id string) (json.RawMessage, error)
	MaxConcurrent() int
}

// Archiver is the subset of the archive store the manager depends on.
type Archiver interface {
	PutPage(ctx context.Context, kind model.Kind, page int, body []byte, recordCount int) error
	GetPage(ctx context.Context, kind model.Kind, page int) ([]byte, bool, error)
	PutObject(ctx context.Context, kind model.Kind, id string, body []byte) error
}

// KindReport summarizes one entity kind's ingestion run.
type KindReport struct {
	Err        error
	Kind       model.Kind
	RunID      string
	Pages      int
	Discovered int
	Scheduled  int
	Fetched    int
	NotFound   int
	Failed     int
}

// Manager orchestrates ingestion across entity kinds.
type Manager struct {
	fetcher        Fetcher
	store          Archiver
	progressWriter io.Writer
}

// New creates an ingestion manager. progressWriter receives the fetch
// progress bar; pass nil to disable progress output.
func New(fetcher Fetcher, store Archiver, progressWriter io.Writer) *Manager {
	if progressWriter == nil {
		progressWriter = io.Discard
	}
	return &Manager{
		fetcher:        fetcher,
		store:          store,
		progressWriter: progressWriter,
	}
}

// Run ingests the given kinds concurrently. The checkpoint is an explicit
// input; the returned checkpoint reflects everything durably archived by the
// end of the run, whether it completed or was canceled. A kind whose paging
// fails after retries is aborted alone; its report carries the error and the
// other kinds proceed.
func (m *Manager) Run(ctx context.Context, kinds []model.Kind, cp archive.Checkpoint) (archive.Checkpoint, []KindReport, error) {
	// Materialize per-kind sets up front so concurrent kinds never touch the
	// shared maps.
	for _, kind := range kinds {
		cp.PagesFor(kind)
		cp.ObjectsFor(kind)
	}

	reports := make([]KindReport, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		i, kind := i, kind
		g.Go(func() error {
			reports[i] = m.runKind(gctx, kind, cp)
			// Per-kind failures are reported, not propagated; only
			// cancellation stops the group.
			return nil
		})
	}
	_ = g.Wait()

	return cp, reports, ctx.Err()
}

// runKind pages through one entity kind's listing and fetches its missing
// objects.
func (m *Manager) runKind(ctx context.Context, kind model.Kind, cp archive.Checkpoint) KindReport {
	report := KindReport{
		Kind:  kind,
		RunID: uuid.NewString(),
	}

	slog.Info("Starting ingestion", "kind", kind, "run_id", report.RunID)

	discovered, err := m.fetchPages(ctx, kind, cp, &report)
	if err != nil {
		report.Err = err
		common.LogError(err, "Page ingestion aborted for kind", common.Fields{"kind": kind})
		return report
	}
	report.Discovered = len(discovered)

	m.fetchObjects(ctx, kind, discovered, cp, &report)

	slog.Info("Completed ingestion",
		"kind", kind,
		"pages", report.Pages,
		"discovered", report.Discovered,
		"fetched", report.Fetched,
		"not_found", report.NotFound,
		"failed", report.Failed)

	return report
}

// fetchPages walks the listing from page 0 until an empty page, archiving
// each page and extracting object identifiers. Pages already in the
// checkpoint are re-read from the archive instead of the network; pages are
// strictly sequential per kind because the server's pagination state is only
// valid in order.
func (m *Manager) fetchPages(ctx context.Context, kind model.Kind, cp archive.Checkpoint, report *KindReport) (map[string]bool, error) {
	discovered := make(map[string]bool)
	archivedPages := cp.PagesFor(kind)

	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var resp eoz.PageResponse
		if archivedPages[page] {
			body, ok, err := m.store.GetPage(ctx, kind, page)
			if err != nil {
				return nil, err
			}
			if ok {
				if err := json.Unmarshal(body, &resp); err != nil {
					return nil, fmt.Errorf("archived page %s/%d unreadable: %w", kind, page, err)
				}
				if len(resp.Content) == 0 {
					break
				}
				collectIDs(resp.Content, discovered)
				report.Pages++
				continue
			}
			// Checkpoint claimed a page the archive no longer has; fall
			// through to the network.
		}

		fetched, err := m.fetcher.FetchPage(ctx, kind, page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}

		if len(fetched.Content) == 0 {
			slog.Info("Pagination complete", "kind", kind, "pages", page)
			break
		}

		body, err := json.Marshal(fetched)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal page %s/%d: %w", kind, page, err)
		}
		if err := m.store.PutPage(ctx, kind, page, body, len(fetched.Content)); err != nil {
			return nil, err
		}
		archivedPages[page] = true

		collectIDs(fetched.Content, discovered)
		report.Pages++

		slog.Debug("Archived page",
			"kind", kind,
			"page", page,
			"records", len(fetched.Content))
	}

	return discovered, nil
}

// fetchObjects schedules detail fetches for exactly the identifiers not yet
// archived. Failures are per-identifier: a failed object stays missing and is
// retried on the next run.
func (m *Manager) fetchObjects(ctx context.Context, kind model.Kind, discovered map[string]bool, cp archive.Checkpoint, report *KindReport) {
	archived := cp.ObjectsFor(kind)

	missing := make([]string, 0, len(discovered))
	for id := range discovered {
		if !archived[id] {
			missing = append(missing, id)
		}
	}
	sort.Strings(missing)
	report.Scheduled = len(missing)

	if len(missing) == 0 {
		return
	}

	bar := progressbar.NewOptions(len(missing),
		progressbar.OptionSetWriter(m.progressWriter),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(fmt.Sprintf("Fetching %s objects", kind)),
	)

	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.fetcher.MaxConcurrent())

	for _, id := range missing {
		id := id
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			body, err := m.fetcher.FetchObject(gctx, kind, id)

			mu.Lock()
			defer mu.Unlock()
			_ = bar.Add(1)

			switch {
			case err == nil:
				if putErr := m.store.PutObject(gctx, kind, id, body); putErr != nil {
					report.Failed++
					common.LogError(putErr, "Failed to archive object", common.Fields{"kind": kind, "id": id})
					return nil
				}
				archived[id] = true
				report.Fetched++
			case common.IsNotFound(err):
				// Permanent absence upstream, not an error.
				report.NotFound++
				slog.Debug("Object not found upstream", "kind", kind, "id", id)
			default:
				report.Failed++
				slog.Warn("Object fetch failed, will retry next run",
					"kind", kind,
					"id", id,
					"error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	_ = bar.Finish()
}

// collectIDs extracts the object identifier from each raw listing record.
// Every entity kind exposes its identifier in the "id" field.
func collectIDs(content []json.RawMessage, into map[string]bool) {
	for _, raw := range content {
		var item struct {
			ID any `json:"id"`
		}
		if err := json.Unmarshal(raw, &item); err != nil || item.ID == nil {
			continue
		}
		switch v := item.ID.(type) {
		case string:
			if v != "" {
				into[v] = true
			}
		case float64:
			into[fmt.Sprintf("%.0f", v)] = true
		}
	}
}

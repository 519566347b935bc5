package archive

import (
	"context"

	"github.com/powerhouse-kz/powerhouse/internal/model"
)

// Checkpoint is an explicit snapshot of ingestion progress: per entity kind,
// the set of archived page numbers and the set of archived object
// identifiers. It is loaded by the caller, passed into the ingestion
// manager's run, and persisted implicitly by the archive writes themselves;
// there is no ambient progress state.
type Checkpoint struct {
	Pages   map[model.Kind]map[int]bool
	Objects map[model.Kind]map[string]bool
}

// NewCheckpoint returns an empty checkpoint.
func NewCheckpoint() Checkpoint {
	return Checkpoint{
		Pages:   make(map[model.Kind]map[int]bool),
		Objects: make(map[model.Kind]map[string]bool),
	}
}

// PagesFor returns the archived page set for a kind, creating it if needed.
func (c Checkpoint) PagesFor(kind model.Kind) map[int]bool {
	if c.Pages[kind] == nil {
		c.Pages[kind] = make(map[int]bool)
	}
	return c.Pages[kind]
}

// ObjectsFor returns the archived object identifier set for a kind, creating
// it if needed.
func (c Checkpoint) ObjectsFor(kind model.Kind) map[string]bool {
	if c.Objects[kind] == nil {
		c.Objects[kind] = make(map[string]bool)
	}
	return c.Objects[kind]
}

// LoadCheckpoint rebuilds the checkpoint for the given kinds from the archive.
func (s *Store) LoadCheckpoint(ctx context.Context, kinds []model.Kind) (Checkpoint, error) {
	cp := NewCheckpoint()

	for _, kind := range kinds {
		pages, err := s.ListPages(ctx, kind)
		if err != nil {
			return Checkpoint{}, err
		}
		pageSet := cp.PagesFor(kind)
		for _, p := range pages {
			pageSet[p] = true
		}

		ids, err := s.ListObjectIDs(ctx, kind)
		if err != nil {
			return Checkpoint{}, err
		}
		cp.Objects[kind] = ids
	}

	return cp, nil
}

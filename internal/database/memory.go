package database

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/samber/lo"
)

// MemoryDB is a process-local index for development and tests. Insertion
// order is preserved, so dedup lookups return the oldest match first.
type MemoryDB struct {
	mu      sync.RWMutex
	records []*FileRecord
	byID    map[string]*FileRecord
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{byID: make(map[string]*FileRecord)}
}

func (m *MemoryDB) FindByFingerprintAndOwner(ctx context.Context, fingerprint, ownerID string) ([]*FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := lo.Filter(m.records, func(r *FileRecord, _ int) bool {
		return r.Fingerprint == fingerprint && r.OwnerID == ownerID && !r.IsDeleted && !r.IsFolder
	})
	return cloneAll(matches), nil
}

func (m *MemoryDB) Insert(ctx context.Context, rec *FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[rec.ID]; ok {
		return fmt.Errorf("duplicate file id %s", rec.ID)
	}
	c := *rec
	m.records = append(m.records, &c)
	m.byID[c.ID] = &c
	return nil
}

func (m *MemoryDB) Update(ctx context.Context, rec *FileRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.byID[rec.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Name = rec.Name
	cur.ParentID = rec.ParentID
	cur.IsDeleted = rec.IsDeleted
	cur.UpdatedAt = rec.UpdatedAt
	return nil
}

func (m *MemoryDB) GetFile(ctx context.Context, fileID string) (*FileRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.byID[fileID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *rec
	return &c, nil
}

func (m *MemoryDB) FindParentPath(ctx context.Context, parentID string) (*FileRecord, error) {
	rec, err := m.GetFile(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if !rec.IsFolder || rec.IsDeleted {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryDB) ListFiles(ctx context.Context, f ListFilter) ([]*FileRecord, error) {
	if f.Offset < 0 {
		return nil, fmt.Errorf("negative list offset %d", f.Offset)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	live := lo.Filter(m.records, func(r *FileRecord, _ int) bool {
		return r.OwnerID == f.OwnerID && r.ParentID == f.ParentID && !r.IsDeleted
	})
	// folders first, then newest first
	slices.Reverse(live)
	slices.SortStableFunc(live, func(a, b *FileRecord) int {
		switch {
		case a.IsFolder == b.IsFolder:
			return 0
		case a.IsFolder:
			return -1
		default:
			return 1
		}
	})

	if f.Offset >= len(live) {
		return nil, nil
	}
	live = live[f.Offset:]
	if f.Limit > 0 && f.Limit < len(live) {
		live = live[:f.Limit]
	}
	return cloneAll(live), nil
}

func cloneAll(recs []*FileRecord) []*FileRecord {
	return lo.Map(recs, func(r *FileRecord, _ int) *FileRecord {
		c := *r
		return &c
	})
}

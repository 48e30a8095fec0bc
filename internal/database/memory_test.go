package database_test

import (
	"context"
	"testing"
	"time"

	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDedupLookupIsOwnerScoped(t *testing.T) {
	db := database.NewMemoryDB()
	ctx := context.Background()

	require.NoError(t, db.Insert(ctx, &database.FileRecord{ID: "a", OwnerID: "u1", Fingerprint: fp, StoragePath: "user_u1/o1"}))
	require.NoError(t, db.Insert(ctx, &database.FileRecord{ID: "b", OwnerID: "u2", Fingerprint: fp, StoragePath: "user_u2/o2"}))
	require.NoError(t, db.Insert(ctx, &database.FileRecord{ID: "c", OwnerID: "u1", Fingerprint: fp, StoragePath: "user_u1/o1", IsDeleted: true}))
	require.NoError(t, db.Insert(ctx, &database.FileRecord{ID: "d", OwnerID: "u1", Fingerprint: fp, StoragePath: "user_u1/o1"}))

	recs, err := db.FindByFingerprintAndOwner(ctx, fp, "u1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].ID, "oldest match first")
	assert.Equal(t, "d", recs[1].ID)

	recs, err = db.FindByFingerprintAndOwner(ctx, fp, "u3")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestMemoryReturnsCopies(t *testing.T) {
	db := database.NewMemoryDB()
	ctx := context.Background()
	require.NoError(t, db.Insert(ctx, &database.FileRecord{ID: "a", Name: "orig"}))

	rec, err := db.GetFile(ctx, "a")
	require.NoError(t, err)
	rec.Name = "mutated"

	again, err := db.GetFile(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "orig", again.Name)
}

func TestMemoryInsertDuplicateID(t *testing.T) {
	db := database.NewMemoryDB()
	ctx := context.Background()
	require.NoError(t, db.Insert(ctx, &database.FileRecord{ID: "a"}))
	assert.Error(t, db.Insert(ctx, &database.FileRecord{ID: "a"}))
}

func TestMemoryUpdateAndParent(t *testing.T) {
	db := database.NewMemoryDB()
	ctx := context.Background()
	require.NoError(t, db.Insert(ctx, &database.FileRecord{ID: "d", IsFolder: true, StoragePath: "user_u1/d"}))
	require.NoError(t, db.Insert(ctx, &database.FileRecord{ID: "f", Name: "x"}))

	parent, err := db.FindParentPath(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, "user_u1/d", parent.StoragePath)

	_, err = db.FindParentPath(ctx, "f")
	assert.ErrorIs(t, err, database.ErrNotFound)

	now := time.Now()
	require.NoError(t, db.Update(ctx, &database.FileRecord{ID: "f", Name: "y", UpdatedAt: now}))
	rec, err := db.GetFile(ctx, "f")
	require.NoError(t, err)
	assert.Equal(t, "y", rec.Name)

	assert.ErrorIs(t, db.Update(ctx, &database.FileRecord{ID: "zz"}), database.ErrNotFound)
}

func TestMemoryListFiles(t *testing.T) {
	db := database.NewMemoryDB()
	ctx := context.Background()
	require.NoError(t, db.Insert(ctx, &database.FileRecord{ID: "f1", OwnerID: "u1"}))
	require.NoError(t, db.Insert(ctx, &database.FileRecord{ID: "d1", OwnerID: "u1", IsFolder: true}))
	require.NoError(t, db.Insert(ctx, &database.FileRecord{ID: "f2", OwnerID: "u1"}))
	require.NoError(t, db.Insert(ctx, &database.FileRecord{ID: "f3", OwnerID: "u1", IsDeleted: true}))
	require.NoError(t, db.Insert(ctx, &database.FileRecord{ID: "n1", OwnerID: "u1", ParentID: "d1"}))
	require.NoError(t, db.Insert(ctx, &database.FileRecord{ID: "o1", OwnerID: "u2"}))

	recs, err := db.ListFiles(ctx, database.ListFilter{OwnerID: "u1"})
	require.NoError(t, err)
	ids := make([]string, 0, len(recs))
	for _, r := range recs {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"d1", "f2", "f1"}, ids)

	recs, err = db.ListFiles(ctx, database.ListFilter{OwnerID: "u1", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "f2", recs[0].ID)

	recs, err = db.ListFiles(ctx, database.ListFilter{OwnerID: "u1", ParentID: "d1"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "n1", recs[0].ID)
}

func TestMemoryListFilesRejectsNegativeOffset(t *testing.T) {
	db := database.NewMemoryDB()
	ctx := context.Background()
	require.NoError(t, db.Insert(ctx, &database.FileRecord{ID: "f1", OwnerID: "u"}))

	assert.NotPanics(t, func() {
		_, err := db.ListFiles(ctx, database.ListFilter{OwnerID: "u", Offset: -1, Limit: 21})
		assert.Error(t, err)
	})
}

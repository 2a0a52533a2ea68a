package upload

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepPurgesRecordsWithMissingObjects(t *testing.T) {
	f := newFixture(t)
	u, err := f.svc.Submit(context.Background(), "owner-1", "a.png", "image/png", []byte("x"))
	require.NoError(t, err)

	// Simulate the object vanishing out from under the record.
	require.NoError(t, f.store.Delete(context.Background(), u.StoragePath))

	rec := NewReconciler(f.store, f.repo, 24*time.Hour)
	require.NoError(t, rec.Sweep(context.Background()))

	_, err = f.repo.GetByID(context.Background(), u.ID)
	assert.ErrorIs(t, err, ErrNotFound, "dangling record should be purged")
}

func TestSweepCollectsOrphanedObjectsPastGracePeriod(t *testing.T) {
	f := newFixture(t)

	// An unreferenced object old enough to collect, and a fresh one that a
	// concurrent upload may still be staging.
	require.NoError(t, f.store.Put(context.Background(), "other/owner-1/old-orphan", strings.NewReader("stale"), 5, "text/plain", nil))
	require.NoError(t, f.store.Put(context.Background(), "other/owner-1/new-orphan", strings.NewReader("fresh"), 5, "text/plain", nil))
	f.store.mu.Lock()
	obj := f.store.objects["other/owner-1/old-orphan"]
	obj.modified = time.Now().Add(-48 * time.Hour)
	f.store.objects["other/owner-1/old-orphan"] = obj
	f.store.mu.Unlock()

	rec := NewReconciler(f.store, f.repo, 24*time.Hour)
	require.NoError(t, rec.Sweep(context.Background()))

	assert.False(t, f.store.has("other/owner-1/old-orphan"), "aged orphan should be collected")
	assert.True(t, f.store.has("other/owner-1/new-orphan"), "objects inside the grace period must be left alone")
}

func TestSweepLeavesCommittedObjectsAlone(t *testing.T) {
	f := newFixture(t)
	u, err := f.svc.Submit(context.Background(), "owner-1", "a.png", "image/png", []byte("x"))
	require.NoError(t, err)

	// Even an old committed object is referenced by its record.
	f.store.mu.Lock()
	obj := f.store.objects[u.StoragePath]
	obj.modified = time.Now().Add(-72 * time.Hour)
	f.store.objects[u.StoragePath] = obj
	f.store.mu.Unlock()

	rec := NewReconciler(f.store, f.repo, 24*time.Hour)
	require.NoError(t, rec.Sweep(context.Background()))

	assert.True(t, f.store.has(u.StoragePath))
	_, err = f.repo.GetByID(context.Background(), u.ID)
	assert.NoError(t, err)
}

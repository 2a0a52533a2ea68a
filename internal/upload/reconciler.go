package upload

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/filedrop/service/internal/storage"
)

// Reconciler periodically resolves the narrow inconsistency windows the
// pipeline tolerates: records whose object is gone (dangling metadata) and
// objects no record references (orphaned staged files, e.g. after a crash
// mid-unwind). Orphans are only collected once older than the grace period,
// so an in-flight upload's staged object is never touched.
type Reconciler struct {
	store storage.Storage
	repo  Repository
	grace time.Duration
	now   func() time.Time
}

// NewReconciler creates a Reconciler with the given grace period for
// unreferenced objects.
func NewReconciler(store storage.Storage, repo Repository, grace time.Duration) *Reconciler {
	return &Reconciler{store: store, repo: repo, grace: grace, now: time.Now}
}

// Run sweeps on the given interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				log.Printf("reconciler: sweep failed: %v", err)
			}
		}
	}
}

// Sweep runs one reconciliation pass and returns the first error that aborted
// it. Per-item failures are logged and skipped so one bad key cannot stall
// the rest of the sweep.
func (r *Reconciler) Sweep(ctx context.Context) error {
	paths, err := r.repo.AllStoragePaths(ctx)
	if err != nil {
		return err
	}

	// Records pointing at missing objects serve dead links; purge them.
	for path, id := range paths {
		_, err := r.store.Stat(ctx, path)
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("reconciler: purging record %s, object %q is gone", id, path)
			if err := r.repo.Delete(ctx, id); err != nil {
				log.Printf("reconciler: purge record %s: %v", id, err)
			}
			continue
		}
		if err != nil {
			log.Printf("reconciler: stat %q: %v", path, err)
		}
	}

	// Objects no record references are leftovers from interrupted unwinds.
	objects, err := r.store.List(ctx, "")
	if err != nil {
		return err
	}
	cutoff := r.now().Add(-r.grace)
	for _, obj := range objects {
		if _, referenced := paths[obj.Key]; referenced {
			continue
		}
		if obj.LastModified.After(cutoff) {
			continue
		}
		log.Printf("reconciler: collecting orphaned object %q", obj.Key)
		if err := r.store.Delete(ctx, obj.Key); err != nil {
			log.Printf("reconciler: delete %q: %v", obj.Key, err)
		}
	}
	return nil
}

package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/filedrop/service/internal/scan"
	"github.com/filedrop/service/internal/storage"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// VerdictCache looks up and stores scan verdicts by payload hash.
// *scan.ResultStore satisfies it; tests use an in-memory fake.
type VerdictCache interface {
	Get(ctx context.Context, fileHash string) (*scan.CachedResult, error)
	Put(ctx context.Context, fileHash string, res scan.Result) error
}

// Service orchestrates the upload pipeline and the deletion workflow.
//
// Ordering is the consistency mechanism: stage → scan → commit on the way in,
// delete-object → delete-record on the way out. No transaction ever spans the
// object store and the metadata store.
type Service struct {
	store        storage.Storage
	repo         Repository
	scanner      scan.Scanner
	cache        VerdictCache
	signedURLTTL time.Duration
	cacheTTL     time.Duration

	now func() time.Time
}

// NewService creates the upload Service. cache may be nil to disable verdict
// reuse.
func NewService(store storage.Storage, repo Repository, scanner scan.Scanner, cache VerdictCache, signedURLTTL, cacheTTL time.Duration) *Service {
	return &Service{
		store:        store,
		repo:         repo,
		scanner:      scanner,
		cache:        cache,
		signedURLTTL: signedURLTTL,
		cacheTTL:     cacheTTL,
		now:          time.Now,
	}
}

// Submit runs the full pipeline for one file: classify, stage, scan, commit.
// On any failure after staging, the staged object is deleted before the error
// is returned — an object that has not passed the scan must never remain
// addressable.
func (s *Service) Submit(ctx context.Context, ownerID, originalFilename, contentType string, data []byte) (*Upload, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	category := Categorize(contentType)
	storagePath := buildStoragePath(category, ownerID, originalFilename, s.now())

	err := s.store.Put(ctx, storagePath, bytes.NewReader(data), int64(len(data)), contentType,
		map[string]string{"uploaded-by": ownerID})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreWrite, err)
	}

	verdict, err := s.obtainVerdict(ctx, originalFilename, data)
	if err != nil {
		s.discardStaged(storagePath)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrScanUnavailable, err)
	}
	if verdict == scan.VerdictFlagged {
		s.discardStaged(storagePath)
		return nil, ErrMalwareDetected
	}

	accessURL, err := s.store.SignedURL(ctx, storagePath, s.signedURLTTL)
	if err != nil {
		s.discardStaged(storagePath)
		return nil, fmt.Errorf("%w: sign access url: %v", ErrStoreWrite, err)
	}

	now := s.now()
	u := &Upload{
		OwnerID:          ownerID,
		OriginalFilename: originalFilename,
		StoragePath:      storagePath,
		Category:         category,
		ContentType:      contentType,
		SizeBytes:        int64(len(data)),
		AccessURL:        accessURL,
		AccessExpiresAt:  now.Add(s.signedURLTTL),
		UploadedAt:       now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		// The scan passed but the record could not be written; without a
		// record the object is unreachable, so roll it back.
		s.discardStaged(storagePath)
		return nil, fmt.Errorf("%w: %v", ErrMetadataWrite, err)
	}
	return u, nil
}

// obtainVerdict returns the terminal verdict for data, consulting the cache
// before the external service. Only clean verdicts within the cache TTL are
// reused: a flagged hash is always re-scanned so a stale false positive
// cannot permanently block a payload.
func (s *Service) obtainVerdict(ctx context.Context, filename string, data []byte) (scan.Verdict, error) {
	hash := scan.HashPayload(data)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, hash)
		if err == nil && cached.Verdict == scan.VerdictClean && s.now().Sub(cached.ScannedAt) < s.cacheTTL {
			return cached.Verdict, nil
		}
		if err != nil && !errors.Is(err, scan.ErrNoCachedResult) {
			log.Printf("upload: verdict cache lookup: %v", err)
		}
	}

	res, err := s.scanner.Scan(ctx, filename, data)
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, hash, res); err != nil {
			log.Printf("upload: verdict cache store: %v", err)
		}
	}
	return res.Verdict, nil
}

// discardStaged deletes a staged object on an unwind path. Best effort: the
// delete uses a fresh context (the request's may already be cancelled) and a
// failure is logged, left for the reconciliation sweep to collect.
func (s *Service) discardStaged(storagePath string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.store.Delete(ctx, storagePath); err != nil {
		log.Printf("upload: discard staged object %q: %v", storagePath, err)
	}
}

// List returns the owner's committed uploads, newest first. limit is clamped
// to [1, 100]; zero or negative means the default page size.
func (s *Service) List(ctx context.Context, ownerID string, limit int) ([]*Upload, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListByOwner(ctx, ownerID, limit)
}

// Delete removes an upload owned by ownerID: the object first, then the
// record. A missing record and an ownership mismatch are both reported as
// success — deleting an already-gone thing is a no-op, and the mismatch case
// must not leak whether the record exists.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	u, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch upload: %w", err)
	}

	if u.OwnerID != ownerID {
		log.Printf("upload: delete of %s denied for non-owner %s", id, ownerID)
		return nil
	}

	// Object before record. The reverse order could orphan an object that no
	// record accounts for.
	if err := s.store.Delete(ctx, u.StoragePath); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return nil
}

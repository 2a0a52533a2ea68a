package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoCachedResult is returned when no verdict is stored for a hash.
var ErrNoCachedResult = errors.New("no cached scan result")

// CachedResult is a persisted verdict for a payload hash.
type CachedResult struct {
	FileHash  string
	Verdict   Verdict
	Stats     Stats
	ScannedAt time.Time
}

// ResultStore persists scan verdicts keyed by payload SHA-256 so re-uploads
// of known content can skip the external round trip.
type ResultStore struct {
	db *pgxpool.Pool
}

// NewResultStore creates a ResultStore with the given connection pool.
func NewResultStore(db *pgxpool.Pool) *ResultStore {
	return &ResultStore{db: db}
}

// Get returns the stored verdict for fileHash, or ErrNoCachedResult.
func (s *ResultStore) Get(ctx context.Context, fileHash string) (*CachedResult, error) {
	cr := &CachedResult{}
	err := s.db.QueryRow(ctx,
		`SELECT file_hash, verdict, malicious, suspicious, scanned_at
		 FROM scan_results WHERE file_hash = $1`,
		fileHash,
	).Scan(&cr.FileHash, &cr.Verdict, &cr.Stats.Malicious, &cr.Stats.Suspicious, &cr.ScannedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoCachedResult
	}
	if err != nil {
		return nil, fmt.Errorf("get scan result: %w", err)
	}
	return cr, nil
}

// Put stores or refreshes the verdict for fileHash.
func (s *ResultStore) Put(ctx context.Context, fileHash string, res Result) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO scan_results (file_hash, verdict, malicious, suspicious, scanned_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (file_hash) DO UPDATE
		 SET verdict = EXCLUDED.verdict,
		     malicious = EXCLUDED.malicious,
		     suspicious = EXCLUDED.suspicious,
		     scanned_at = EXCLUDED.scanned_at`,
		fileHash, res.Verdict, res.Stats.Malicious, res.Stats.Suspicious,
	)
	if err != nil {
		return fmt.Errorf("store scan result: %w", err)
	}
	return nil
}

package upload

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the metadata-store contract consumed by the Service and the
// Reconciler. The pgx implementation below is the production one; tests use
// an in-memory fake.
type Repository interface {
	// Create inserts the record and fills in its store-assigned ID.
	Create(ctx context.Context, u *Upload) error
	// GetByID fetches a record, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Upload, error)
	// Delete removes a record. Deleting an absent id is not an error.
	Delete(ctx context.Context, id string) error
	// ListByOwner returns the owner's records, newest uploaded_at first.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Upload, error)
	// AllStoragePaths maps every live storage path to its record id.
	AllStoragePaths(ctx context.Context) (map[string]string, error)
}

// PostgresRepository implements Repository on a pgx pool.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewRepository creates a PostgresRepository with the given connection pool.
func NewRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the record and fills in its id and store-side timestamps.
func (r *PostgresRepository) Create(ctx context.Context, u *Upload) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO uploads (owner_id, original_filename, storage_path, category,
		                      content_type, size_bytes, access_url, access_expires_at, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		u.OwnerID, u.OriginalFilename, u.StoragePath, u.Category,
		u.ContentType, u.SizeBytes, u.AccessURL, u.AccessExpiresAt, u.UploadedAt,
	).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("create upload record: %w", err)
	}
	return nil
}

// GetByID fetches a record by its UUID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Upload, error) {
	u := &Upload{}
	err := r.db.QueryRow(ctx,
		`SELECT id, owner_id, original_filename, storage_path, category,
		        content_type, size_bytes, access_url, access_expires_at, uploaded_at
		 FROM uploads WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.OwnerID, &u.OriginalFilename, &u.StoragePath, &u.Category,
		&u.ContentType, &u.SizeBytes, &u.AccessURL, &u.AccessExpiresAt, &u.UploadedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get upload by id: %w", err)
	}
	return u, nil
}

// Delete removes a record by id. A missing row is treated as success.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM uploads WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete upload record: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's records ordered newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]*Upload, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, owner_id, original_filename, storage_path, category,
		        content_type, size_bytes, access_url, access_expires_at, uploaded_at
		 FROM uploads WHERE owner_id = $1
		 ORDER BY uploaded_at DESC
		 LIMIT $2`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*Upload
	for rows.Next() {
		u := &Upload{}
		if err := rows.Scan(&u.ID, &u.OwnerID, &u.OriginalFilename, &u.StoragePath, &u.Category,
			&u.ContentType, &u.SizeBytes, &u.AccessURL, &u.AccessExpiresAt, &u.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan upload row: %w", err)
		}
		uploads = append(uploads, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate upload rows: %w", err)
	}
	return uploads, nil
}

// AllStoragePaths returns storage_path → record id for every live record.
// Used by the reconciliation sweep.
func (r *PostgresRepository) AllStoragePaths(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.Query(ctx, `SELECT storage_path, id FROM uploads`)
	if err != nil {
		return nil, fmt.Errorf("list storage paths: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]string)
	for rows.Next() {
		var path, id string
		if err := rows.Scan(&path, &id); err != nil {
			return nil, fmt.Errorf("scan storage path: %w", err)
		}
		paths[path] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate storage paths: %w", err)
	}
	return paths, nil
}

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/PaulBabatuyi/CloudDrive-gRPC/internal/database/migrations"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

type Config struct {
	Driver string `envconfig:"DRIVER" default:"postgres" validate:"oneof=postgres memory"`
	URL    string `envconfig:"URL" validate:"required_if=Driver postgres"`
}

const recordColumns = `id, owner_id, COALESCE(parent_id, ''), name, original_name,
        COALESCE(storage_path, ''), size, content_type, COALESCE(fingerprint, ''),
        is_folder, is_deleted, created_at, updated_at`

type PostgresDB struct {
	db *sql.DB
}

func NewPostgresDB(ctx context.Context, connectionString string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &PostgresDB{db: db}, nil
}

// NewPostgresDBFromConn wraps an already opened handle.
func NewPostgresDBFromConn(db *sql.DB) *PostgresDB {
	return &PostgresDB{db: db}
}

// Migrate applies the embedded goose migrations.
func (p *PostgresDB) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, p.db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func (p *PostgresDB) Close() error {
	return p.db.Close()
}

// FindByFingerprintAndOwner returns live, non-folder records of one owner
// with the given fingerprint, oldest first.
func (p *PostgresDB) FindByFingerprintAndOwner(ctx context.Context, fingerprint, ownerID string) ([]*FileRecord, error) {
	query := `
        SELECT ` + recordColumns + `
        FROM files
        WHERE fingerprint = $1 AND owner_id = $2 AND is_deleted = FALSE AND is_folder = FALSE
        ORDER BY created_at ASC
    `
	rows, err := p.db.QueryContext(ctx, query, fingerprint, ownerID)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (p *PostgresDB) Insert(ctx context.Context, rec *FileRecord) error {
	query := `
        INSERT INTO files (id, owner_id, parent_id, name, original_name, storage_path, size,
                           content_type, fingerprint, is_folder, is_deleted, created_at, updated_at)
        VALUES ($1, $2, NULLIF($3, ''), $4, $5, NULLIF($6, ''), $7, $8, NULLIF($9, ''), $10, $11, $12, $13)
    `
	_, err := p.db.ExecContext(ctx, query,
		rec.ID,
		rec.OwnerID,
		rec.ParentID,
		rec.Name,
		rec.OriginalName,
		rec.StoragePath,
		rec.Size,
		rec.ContentType,
		rec.Fingerprint,
		rec.IsFolder,
		rec.IsDeleted,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	return err
}

// Update persists the mutable fields of a record.
func (p *PostgresDB) Update(ctx context.Context, rec *FileRecord) error {
	query := `
        UPDATE files
        SET name = $2, parent_id = NULLIF($3, ''), is_deleted = $4, updated_at = $5
        WHERE id = $1
    `
	result, err := p.db.ExecContext(ctx, query, rec.ID, rec.Name, rec.ParentID, rec.IsDeleted, rec.UpdatedAt)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// GetFile loads a record by id, soft-deleted ones included.
func (p *PostgresDB) GetFile(ctx context.Context, fileID string) (*FileRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM files WHERE id = $1`
	return scanRecord(p.db.QueryRowContext(ctx, query, fileID))
}

// FindParentPath resolves a live folder so uploads can nest under its path.
func (p *PostgresDB) FindParentPath(ctx context.Context, parentID string) (*FileRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM files WHERE id = $1 AND is_folder = TRUE AND is_deleted = FALSE`
	return scanRecord(p.db.QueryRowContext(ctx, query, parentID))
}

func (p *PostgresDB) ListFiles(ctx context.Context, f ListFilter) ([]*FileRecord, error) {
	query := `
        SELECT ` + recordColumns + `
        FROM files
        WHERE owner_id = $1 AND parent_id IS NOT DISTINCT FROM NULLIF($2, '') AND is_deleted = FALSE
        ORDER BY is_folder DESC, created_at DESC
        LIMIT $3 OFFSET $4
    `
	rows, err := p.db.QueryContext(ctx, query, f.OwnerID, f.ParentID, f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*FileRecord, error) {
	var r FileRecord
	err := row.Scan(
		&r.ID,
		&r.OwnerID,
		&r.ParentID,
		&r.Name,
		&r.OriginalName,
		&r.StoragePath,
		&r.Size,
		&r.ContentType,
		&r.Fingerprint,
		&r.IsFolder,
		&r.IsDeleted,
		&r.CreatedAt,
		&r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func scanRecords(rows *sql.Rows) ([]*FileRecord, error) {
	defer rows.Close()

	var files []*FileRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, rec)
	}
	return files, rows.Err()
}

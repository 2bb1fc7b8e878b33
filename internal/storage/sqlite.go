package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kinji/internal/models"
)

// SQLiteStorage implements RecordStore using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// No WAL sidecar files: the artifact must be a single renameable file.
	if _, err := db.Exec("PRAGMA journal_mode=DELETE"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// OpenReadOnly opens an existing records database without creating or migrating it.
func OpenReadOnly(dbPath string) (*SQLiteStorage, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("records artifact: %w", err)
	}
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		row INTEGER PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		abstract TEXT NOT NULL,
		year INTEGER NOT NULL DEFAULT 0,
		journal TEXT NOT NULL DEFAULT '',
		fields TEXT,
		coords TEXT
	);

	CREATE TABLE IF NOT EXISTS manifest (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveRecords replaces all records in a single transaction.
func (s *SQLiteStorage) SaveRecords(ctx context.Context, recs []*models.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return fmt.Errorf("clear records: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (row, id, title, abstract, year, journal, fields, coords)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rec := range recs {
		if rec == nil {
			return fmt.Errorf("record at row %d is nil", i)
		}
		if rec.Row != i {
			return fmt.Errorf("record %s has row %d, expected %d", rec.ID, rec.Row, i)
		}
		fieldsJSON, err := marshalOptional(rec.Fields, len(rec.Fields) > 0)
		if err != nil {
			return fmt.Errorf("failed to marshal fields: %w", err)
		}
		coordsJSON, err := marshalOptional(rec.Coords, len(rec.Coords) > 0)
		if err != nil {
			return fmt.Errorf("failed to marshal coords: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			rec.Row, string(rec.ID), rec.Title, rec.Abstract, rec.Year, rec.Journal, fieldsJSON, coordsJSON,
		); err != nil {
			return fmt.Errorf("insert record %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

func marshalOptional(v interface{}, present bool) (sql.NullString, error) {
	if !present {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

const selectRecord = `SELECT row, id, title, abstract, year, journal, fields, coords FROM records`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(sc rowScanner) (*models.Record, error) {
	var rec models.Record
	var id string
	var fieldsJSON, coordsJSON sql.NullString
	if err := sc.Scan(&rec.Row, &id, &rec.Title, &rec.Abstract, &rec.Year, &rec.Journal, &fieldsJSON, &coordsJSON); err != nil {
		return nil, err
	}
	rec.ID = models.RecordID(id)
	if fieldsJSON.Valid && fieldsJSON.String != "" {
		if err := json.Unmarshal([]byte(fieldsJSON.String), &rec.Fields); err != nil {
			return nil, fmt.Errorf("failed to unmarshal fields of %s: %w", id, err)
		}
	}
	if coordsJSON.Valid && coordsJSON.String != "" {
		if err := json.Unmarshal([]byte(coordsJSON.String), &rec.Coords); err != nil {
			return nil, fmt.Errorf("failed to unmarshal coords of %s: %w", id, err)
		}
	}
	return &rec, nil
}

// LoadRecords returns all records ordered by row. Rows must be dense from 0.
func (s *SQLiteStorage) LoadRecords(ctx context.Context) ([]*models.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectRecord+` ORDER BY row`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if rec.Row != len(recs) {
			return nil, fmt.Errorf("records artifact has a gap: expected row %d, found %d", len(recs), rec.Row)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// CountRecords returns the total number of records.
func (s *SQLiteStorage) CountRecords(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&count)
	return count, err
}

// SaveManifest stores the build manifest.
func (s *SQLiteStorage) SaveManifest(ctx context.Context, m *Manifest) error {
	b, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO manifest (key, value) VALUES ('build', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, string(b))
	return err
}

// Manifest returns the build manifest, or nil if none was stored.
func (s *SQLiteStorage) Manifest(ctx context.Context) (*Manifest, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM manifest WHERE key = 'build'`).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal([]byte(value), &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return &m, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// WriteRecordsFile creates a fresh records database at path holding recs and m.
// Any existing file at path is replaced.
func WriteRecordsFile(ctx context.Context, path string, recs []*models.Record, m *Manifest) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale records file: %w", err)
	}
	store, err := NewSQLiteStorage(path)
	if err != nil {
		return err
	}
	if err := store.SaveRecords(ctx, recs); err != nil {
		store.Close()
		return err
	}
	if m != nil {
		if m.BuiltAt.IsZero() {
			m.BuiltAt = time.Now().UTC()
		}
		if err := store.SaveManifest(ctx, m); err != nil {
			store.Close()
			return err
		}
	}
	return store.Close()
}

// ReadRecordsFile loads the records and manifest stored at path.
func ReadRecordsFile(ctx context.Context, path string) ([]*models.Record, *Manifest, error) {
	store, err := OpenReadOnly(path)
	if err != nil {
		return nil, nil, err
	}
	defer store.Close()
	recs, err := store.LoadRecords(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load records: %w", err)
	}
	m, err := store.Manifest(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load manifest: %w", err)
	}
	return recs, m, nil
}

// InspectRecordsFile returns the record count and manifest stored at path without
// loading the records.
func InspectRecordsFile(ctx context.Context, path string) (int64, *Manifest, error) {
	store, err := OpenReadOnly(path)
	if err != nil {
		return 0, nil, err
	}
	defer store.Close()
	n, err := store.CountRecords(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("count records: %w", err)
	}
	m, err := store.Manifest(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("load manifest: %w", err)
	}
	return n, m, nil
}

var _ RecordStore = (*SQLiteStorage)(nil)

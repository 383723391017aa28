package exporter

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	"golang-rent-normalizer/internal/models"
	"golang-rent-normalizer/pkg/errors"
	"golang-rent-normalizer/pkg/logger"

	_ "modernc.org/sqlite"
)

// RentTable is the long-form table holding the combined dataset
const RentTable = "rent_amounts"

const createRentTable = `CREATE TABLE IF NOT EXISTS rent_amounts (
	agglomeration TEXT NOT NULL,
	housing_type  TEXT NOT NULL,
	scale         TEXT NOT NULL,
	year          INTEGER NOT NULL,
	amount        REAL,
	idx           REAL
)`

const insertRent = `INSERT INTO rent_amounts
	(agglomeration, housing_type, scale, year, amount, idx)
	VALUES (?, ?, ?, ?, ?, ?)`

// SQLiteStore persists the combined table in a SQLite database
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger logger.Logger
}

// OpenSQLite opens or creates the database at path and ensures the rent
// table exists.
func OpenSQLite(ctx context.Context, path string, log logger.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.FileError(errors.CodeDirectoryError, filepath.Dir(path), err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.FileError(errors.CodeWriteFailed, path, err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, createRentTable); err != nil {
		db.Close()
		return nil, errors.FileError(errors.CodeWriteFailed, path, err)
	}

	return &SQLiteStore{db: db, path: path, logger: log.WithComponent("exporter")}, nil
}

// Close releases the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveCombined replaces the content of the rent table with one row per
// record and year. Years whose amount and index are both MISSING are not
// stored.
func (s *SQLiteStore) SaveCombined(ctx context.Context, table *models.CombinedTable) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.FileError(errors.CodeWriteFailed, s.path, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM "+RentTable); err != nil {
		return 0, errors.FileError(errors.CodeWriteFailed, s.path, err)
	}

	stmt, err := tx.PrepareContext(ctx, insertRent)
	if err != nil {
		return 0, errors.FileError(errors.CodeWriteFailed, s.path, err)
	}
	defer stmt.Close()

	years := table.Years.Years()
	inserted := 0
	for _, rec := range table.Records {
		for i, year := range years {
			amount, index := rec.Amounts[i], rec.Indices[i]
			if amount.IsMissing() && index.IsMissing() {
				continue
			}
			if _, err := stmt.ExecContext(ctx,
				rec.Agglomeration, rec.HousingType, rec.Scale, year,
				nullable(amount), nullable(index)); err != nil {
				return 0, errors.FileError(errors.CodeWriteFailed, s.path, err)
			}
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.FileError(errors.CodeWriteFailed, s.path, err)
	}

	s.logger.WithFields(logger.Fields{
		"file_path": s.path,
		"rows":      inserted,
	}).Debug("Stored combined table")
	return inserted, nil
}

// Count returns the number of stored rows
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+RentTable).Scan(&n); err != nil {
		return 0, errors.InternalError(errors.CodeUnexpectedError, "count rent rows", err)
	}
	return n, nil
}

func nullable(v models.Value) sql.NullFloat64 {
	return sql.NullFloat64{Float64: v.Number, Valid: v.Valid}
}

// Package store implements the tiered time-series store: a raw table at
// 1 s resolution and an aggregated table at 60 s/300 s resolution, both
// backed by embedded SQLite with WAL journaling. Scalar aggregates live in
// typed columns so range queries stay indexed; the structured columns are
// blob-encoded by internal/blob.
package store

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/nodewatch/telemetryd/internal/blob"
	"github.com/nodewatch/telemetryd/internal/model"
)

// schemaVersion is recorded in the schema_version migration register on
// every Open; it exists for future migrations, none are needed yet.
const schemaVersion = "1"

// Store wraps the database handle and implements every operation the
// pipeline needs: batch inserts, range reads, range deletes, pruning, and
// compaction.
type Store struct {
	db *sql.DB
}

// Open creates the parent directory if missing, opens the database with a
// 5 s busy timeout, applies the WAL/synchronous pragmas, and creates the
// schema if missing. All of it is idempotent across restarts. maxPoolSize
// caps the shared connection pool.
func Open(path string, maxPoolSize int) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	if maxPoolSize > 0 {
		db.SetMaxOpenConns(maxPoolSize)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		log.Printf("store: warning: failed to enable WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		log.Printf("store: warning: failed to set synchronous mode: %v", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return s, nil
}

func (s *Store) createSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS raw (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at INTEGER NOT NULL,
			cpu_model TEXT NOT NULL,
			cpu_physical_cores INTEGER NOT NULL,
			cpu_logical_cores INTEGER NOT NULL,
			cpu_usage_percent REAL NOT NULL,
			cpu_temperature REAL NOT NULL,
			ram_total INTEGER NOT NULL,
			ram_used INTEGER NOT NULL,
			ram_available INTEGER NOT NULL,
			ram_usage_percent REAL NOT NULL,
			containers BLOB,
			storage BLOB,
			network BLOB,
			system_dynamic BLOB
		);
		CREATE INDEX IF NOT EXISTS idx_raw_created_at ON raw(created_at);

		CREATE TABLE IF NOT EXISTS aggregated (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at INTEGER NOT NULL,
			resolution_seconds INTEGER NOT NULL,
			cpu_load_avg REAL NOT NULL,
			cpu_load_min REAL NOT NULL,
			cpu_load_max REAL NOT NULL,
			memory_used_avg INTEGER NOT NULL,
			memory_used_min INTEGER NOT NULL,
			memory_used_max INTEGER NOT NULL,
			containers BLOB,
			storage BLOB,
			network BLOB,
			system_dynamic BLOB
		);
		CREATE INDEX IF NOT EXISTS idx_aggregated_res_created_at
			ON aggregated(resolution_seconds, created_at);

		CREATE TABLE IF NOT EXISTS system_info (
			id INTEGER PRIMARY KEY,
			data BLOB NOT NULL
		);

		CREATE TABLE IF NOT EXISTS schema_version (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO schema_version (key, value) VALUES ('version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		schemaVersion,
	)
	return err
}

// DB exposes the raw handle for callers that manage their own transaction
// lifecycle.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Close() error { return s.db.Close() }

// SaveSnapshots is one transaction that upserts the SystemInfo singleton
// and inserts every buffered snapshot. An empty batch is a no-op.
func (s *Store) SaveSnapshots(batch []model.Snapshot, info model.SystemInfo) error {
	if len(batch) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	infoBlob, err := Encode(info)
	if err != nil {
		return fmt.Errorf("encode system info: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO system_info (id, data) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		infoBlob,
	); err != nil {
		return fmt.Errorf("upsert system_info: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO raw (
			created_at, cpu_model, cpu_physical_cores, cpu_logical_cores,
			cpu_usage_percent, cpu_temperature, ram_total, ram_used,
			ram_available, ram_usage_percent, containers, storage, network,
			system_dynamic
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, snap := range batch {
		if _, err := stmt.Exec(
			snap.Timestamp,
			snap.CPU.Model, snap.CPU.PhysicalCores, snap.CPU.LogicalCores,
			snap.CPU.UsagePercent, snap.CPU.Temperature,
			snap.RAM.Total, snap.RAM.Used, snap.RAM.Available, snap.RAM.UsagePercent,
			blob.EncodeSimple(blob.ColumnContainers, snap.Containers),
			blob.EncodeSimple(blob.ColumnStorage, snap.Storage),
			blob.EncodeSimple(blob.ColumnNetwork, snap.Network),
			blob.EncodeSystemDynamic(snap.SystemDynamic),
		); err != nil {
			return fmt.Errorf("insert raw row at %d: %w", snap.Timestamp, err)
		}
	}

	return tx.Commit()
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertAggregated(e execer, row model.AggregatedRow) error {
	_, err := e.Exec(`
		INSERT INTO aggregated (
			created_at, resolution_seconds, cpu_load_avg, cpu_load_min, cpu_load_max,
			memory_used_avg, memory_used_min, memory_used_max,
			containers, storage, network, system_dynamic
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.CreatedAt, int(row.Resolution),
		row.CPULoadAvg, row.CPULoadMin, row.CPULoadMax,
		row.MemoryUsedAvg, row.MemoryUsedMin, row.MemoryUsedMax,
		blob.EncodeSimple(blob.ColumnContainers, row.Containers),
		blob.EncodeSimple(blob.ColumnStorage, row.Storage),
		blob.EncodeSimple(blob.ColumnNetwork, row.Network),
		blob.EncodeSystemDynamic(row.SystemDynamic),
	)
	return err
}

// SaveAggregated is save_aggregated(row): a single row insert.
func (s *Store) SaveAggregated(row model.AggregatedRow) error {
	return insertAggregated(s.db, row)
}

// RollupRawBucket commits one bucket's roll-up atomically: the aggregated
// row insert (skipped when row is nil, for an empty bucket) and the raw
// range delete happen in a single transaction, so a crash can never leave
// raw rows that will be re-aggregated next to an already-written bucket.
func (s *Store) RollupRawBucket(row *model.AggregatedRow, fromMs, toMs int64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if row != nil {
		if err := insertAggregated(tx, *row); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(`DELETE FROM raw WHERE created_at >= ? AND created_at < ?`, fromMs, toMs); err != nil {
		return err
	}
	return tx.Commit()
}

// RollupAggregatedBucket is RollupRawBucket for the aggregated→aggregated
// path: insert the coarser row and delete the finer source rows in one
// transaction.
func (s *Store) RollupAggregatedBucket(row *model.AggregatedRow, fromMs, toMs int64, sourceRes model.Resolution) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if row != nil {
		if err := insertAggregated(tx, *row); err != nil {
			return err
		}
	}
	if _, err := tx.Exec(
		`DELETE FROM aggregated WHERE resolution_seconds = ? AND created_at >= ? AND created_at < ?`,
		int(sourceRes), fromMs, toMs,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// GetRawRange returns raw snapshots with created_at in [fromMs, toMs),
// ascending by timestamp.
func (s *Store) GetRawRange(fromMs, toMs int64) ([]model.Snapshot, error) {
	rows, err := s.db.Query(`
		SELECT created_at, cpu_model, cpu_physical_cores, cpu_logical_cores,
			cpu_usage_percent, cpu_temperature, ram_total, ram_used,
			ram_available, ram_usage_percent, containers, storage, network,
			system_dynamic
		FROM raw WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at ASC`, fromMs, toMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Snapshot
	for rows.Next() {
		var snap model.Snapshot
		var containersBlob, storageBlob, networkBlob, sysDynBlob []byte
		if err := rows.Scan(
			&snap.Timestamp, &snap.CPU.Model, &snap.CPU.PhysicalCores, &snap.CPU.LogicalCores,
			&snap.CPU.UsagePercent, &snap.CPU.Temperature,
			&snap.RAM.Total, &snap.RAM.Used, &snap.RAM.Available, &snap.RAM.UsagePercent,
			&containersBlob, &storageBlob, &networkBlob, &sysDynBlob,
		); err != nil {
			return nil, err
		}
		blob.DecodeSimple(blob.ColumnContainers, containersBlob, &snap.Containers)
		blob.DecodeSimple(blob.ColumnStorage, storageBlob, &snap.Storage)
		blob.DecodeSimple(blob.ColumnNetwork, networkBlob, &snap.Network)
		snap.SystemDynamic = blob.DecodeSystemDynamic(sysDynBlob)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// GetAggregatedRange returns aggregated rows at the given resolution with
// created_at in [fromMs, toMs), ascending.
func (s *Store) GetAggregatedRange(fromMs, toMs int64, resolution model.Resolution) ([]model.AggregatedRow, error) {
	rows, err := s.db.Query(`
		SELECT created_at, resolution_seconds, cpu_load_avg, cpu_load_min, cpu_load_max,
			memory_used_avg, memory_used_min, memory_used_max,
			containers, storage, network, system_dynamic
		FROM aggregated
		WHERE resolution_seconds = ? AND created_at >= ? AND created_at < ?
		ORDER BY created_at ASC`, int(resolution), fromMs, toMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AggregatedRow
	for rows.Next() {
		var row model.AggregatedRow
		var res int
		var containersBlob, storageBlob, networkBlob, sysDynBlob []byte
		if err := rows.Scan(
			&row.CreatedAt, &res, &row.CPULoadAvg, &row.CPULoadMin, &row.CPULoadMax,
			&row.MemoryUsedAvg, &row.MemoryUsedMin, &row.MemoryUsedMax,
			&containersBlob, &storageBlob, &networkBlob, &sysDynBlob,
		); err != nil {
			return nil, err
		}
		row.Resolution = model.Resolution(res)
		blob.DecodeSimple(blob.ColumnContainers, containersBlob, &row.Containers)
		blob.DecodeSimple(blob.ColumnStorage, storageBlob, &row.Storage)
		blob.DecodeSimple(blob.ColumnNetwork, networkBlob, &row.Network)
		row.SystemDynamic = blob.DecodeSystemDynamic(sysDynBlob)
		out = append(out, row)
	}
	return out, rows.Err()
}

// MinRawTsBefore returns the oldest raw timestamp strictly before cutoffMs;
// ok is false when no such row exists.
func (s *Store) MinRawTsBefore(cutoffMs int64) (int64, bool, error) {
	var ts sql.NullInt64
	err := s.db.QueryRow(`SELECT MIN(created_at) FROM raw WHERE created_at < ?`, cutoffMs).Scan(&ts)
	if err != nil {
		return 0, false, err
	}
	return ts.Int64, ts.Valid, nil
}

// MinAggregatedTsBefore is MinRawTsBefore for the aggregated table at one
// resolution.
func (s *Store) MinAggregatedTsBefore(cutoffMs int64, resolution model.Resolution) (int64, bool, error) {
	var ts sql.NullInt64
	err := s.db.QueryRow(
		`SELECT MIN(created_at) FROM aggregated WHERE resolution_seconds = ? AND created_at < ?`,
		int(resolution), cutoffMs,
	).Scan(&ts)
	if err != nil {
		return 0, false, err
	}
	return ts.Int64, ts.Valid, nil
}

// DeleteRawRange deletes raw rows in [fromMs, toMs) and reports how many.
func (s *Store) DeleteRawRange(fromMs, toMs int64) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM raw WHERE created_at >= ? AND created_at < ?`, fromMs, toMs)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteAggregatedRange deletes aggregated rows at one resolution in
// [fromMs, toMs) and reports how many.
func (s *Store) DeleteAggregatedRange(fromMs, toMs int64, resolution model.Resolution) (int64, error) {
	res, err := s.db.Exec(
		`DELETE FROM aggregated WHERE resolution_seconds = ? AND created_at >= ? AND created_at < ?`,
		int(resolution), fromMs, toMs,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneRawBefore drops every raw row older than cutoffMs.
func (s *Store) PruneRawBefore(cutoffMs int64) error {
	_, err := s.db.Exec(`DELETE FROM raw WHERE created_at < ?`, cutoffMs)
	return err
}

// PruneAggregatedBefore drops every aggregated row older than cutoffMs,
// across every resolution.
func (s *Store) PruneAggregatedBefore(cutoffMs int64) error {
	_, err := s.db.Exec(`DELETE FROM aggregated WHERE created_at < ?`, cutoffMs)
	return err
}

// Compact reclaims file space after large deletes.
func (s *Store) Compact() error {
	_, err := s.db.Exec("VACUUM")
	return err
}

// GetSystemInfo reads the singleton system_info row, if any.
func (s *Store) GetSystemInfo() (model.SystemInfo, bool, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM system_info WHERE id = 1`).Scan(&data)
	if err == sql.ErrNoRows {
		return model.SystemInfo{}, false, nil
	}
	if err != nil {
		return model.SystemInfo{}, false, err
	}
	info, err := DecodeSystemInfo(data)
	if err != nil {
		return model.SystemInfo{}, false, err
	}
	return info, true, nil
}

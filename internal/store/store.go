package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"imgcluster/internal/core"

	_ "github.com/mattn/go-sqlite3"
)

// DatabaseFile is the SQLite file created inside the data directory
const DatabaseFile = "imgcluster.db"

// ErrRunNotFound is returned when no stored run matches an id
var ErrRunNotFound = errors.New("run not found")

// ErrAmbiguousRunID is returned when an id prefix matches several runs
var ErrAmbiguousRunID = errors.New("ambiguous run id")

// Store represents the SQLite-based feature cache and run history
type Store struct {
	db   *sql.DB
	path string
}

// NewStore creates a new store instance with SQLite database
func NewStore(dataDir string) (*Store, error) {
	// Ensure data directory exists
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DatabaseFile)
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Extraction workers share one connection; SQLite serializes writers anyway
	db.SetMaxOpenConns(1)

	store := &Store{
		db:   db,
		path: dbPath,
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return store, nil
}

// initialize creates the necessary tables
func (s *Store) initialize() error {
	// Extracted feature vectors keyed by file path and content
	featuresTable := `
	CREATE TABLE IF NOT EXISTS features (
		path TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		vector TEXT NOT NULL,
		extracted_at DATETIME,
		PRIMARY KEY (path, content_hash)
	);`

	// One row per clustering run
	runsTable := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		input_dir TEXT,
		output_dir TEXT,
		eps REAL,
		min_samples INTEGER,
		metric TEXT,
		images INTEGER,
		clusters INTEGER,
		noise INTEGER,
		failures INTEGER,
		silhouette REAL,
		dry_run BOOLEAN,
		created_at DATETIME
	);`

	// Final label of every image of a run, in dataset order
	assignmentsTable := `
	CREATE TABLE IF NOT EXISTS assignments (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		path TEXT NOT NULL,
		label INTEGER NOT NULL,
		vector TEXT,
		PRIMARY KEY (run_id, position),
		FOREIGN KEY (run_id) REFERENCES runs (id)
	);`

	// Mean silhouette of every cluster of a run
	clusterScoresTable := `
	CREATE TABLE IF NOT EXISTS cluster_scores (
		run_id TEXT NOT NULL,
		label INTEGER NOT NULL,
		silhouette REAL NOT NULL,
		PRIMARY KEY (run_id, label),
		FOREIGN KEY (run_id) REFERENCES runs (id)
	);`

	// Files skipped by a run
	runFailuresTable := `
	CREATE TABLE IF NOT EXISTS run_failures (
		run_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		path TEXT NOT NULL,
		stage TEXT NOT NULL,
		error TEXT,
		PRIMARY KEY (run_id, position),
		FOREIGN KEY (run_id) REFERENCES runs (id)
	);`

	tables := []string{featuresTable, runsTable, assignmentsTable, clusterScoresTable, runFailuresTable}
	for _, table := range tables {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location
func (s *Store) Path() string {
	return s.path
}

// GetFeatures returns the cached vector for path with the given content hash.
// A miss returns (nil, false, nil).
func (s *Store) GetFeatures(path, contentHash string) (core.Vector, bool, error) {
	var raw string
	err := s.db.QueryRow(
		`SELECT vector FROM features WHERE path = ? AND content_hash = ?`,
		path, contentHash,
	).Scan(&raw)

	if err == sql.ErrNoRows {
		return nil, false, nil // Cache miss
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read features: %w", err)
	}

	vec, err := deserializeVector(raw)
	if err != nil {
		return nil, false, err
	}
	return vec, true, nil
}

// PutFeatures stores the vector extracted from path
func (s *Store) PutFeatures(path, contentHash string, vec core.Vector) error {
	raw, err := serializeVector(vec)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
	INSERT OR REPLACE INTO features (path, content_hash, vector, extracted_at)
	VALUES (?, ?, ?, ?)`,
		path, contentHash, raw, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to store features: %w", err)
	}
	return nil
}

// SaveRun records a run with its assignments, cluster scores and failures in one transaction
func (s *Store) SaveRun(run *core.RunResult) error {
	if len(run.Images) != len(run.Labels) {
		return fmt.Errorf("run has %d images but %d labels", len(run.Images), len(run.Labels))
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
	INSERT OR REPLACE INTO runs
	(id, input_dir, output_dir, eps, min_samples, metric, images, clusters, noise, failures, silhouette, dry_run, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.InputDir,
		run.OutputDir,
		run.Params.Eps,
		run.Params.MinSamples,
		run.Params.Metric,
		len(run.Images),
		run.Clusters,
		run.Noise,
		len(run.Failures),
		run.Silhouette,
		run.DryRun,
		run.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, table := range []string{"assignments", "cluster_scores", "run_failures"} {
		if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE run_id = ?", table), run.ID); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}

	stmt, err := tx.Prepare(`INSERT INTO assignments (run_id, position, path, label, vector) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare assignment insert: %w", err)
	}
	defer stmt.Close()

	for i, img := range run.Images {
		raw, err := serializeVector(img.Features)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(run.ID, i, img.Path, run.Labels[i], raw); err != nil {
			return fmt.Errorf("failed to insert assignment: %w", err)
		}
	}

	for label, score := range run.ClusterSilhouettes {
		if _, err := tx.Exec(`INSERT INTO cluster_scores (run_id, label, silhouette) VALUES (?, ?, ?)`, run.ID, label, score); err != nil {
			return fmt.Errorf("failed to insert cluster score: %w", err)
		}
	}

	for i, failure := range run.Failures {
		_, err := tx.Exec(`INSERT INTO run_failures (run_id, position, path, stage, error) VALUES (?, ?, ?, ?, ?)`,
			run.ID, i, failure.Path, failure.Stage, failure.Err)
		if err != nil {
			return fmt.Errorf("failed to insert run failure: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// RunSummary is one row of the run history
type RunSummary struct {
	ID         string
	InputDir   string
	OutputDir  string
	Params     core.RunParams
	Images     int
	Clusters   int
	Noise      int
	Failures   int
	Silhouette float64
	DryRun     bool
	CreatedAt  time.Time
}

const runColumns = `id, input_dir, output_dir, eps, min_samples, metric, images, clusters, noise, failures, silhouette, dry_run, created_at`

// ListRuns returns the most recent runs, newest first
func (s *Store) ListRuns(limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun loads a run with its assignments, cluster scores and failures. id
// may be a unique prefix; an empty id selects the most recent run.
func (s *Store) GetRun(id string) (*core.RunResult, error) {
	summary, err := s.findRun(id)
	if err != nil {
		return nil, err
	}

	run := &core.RunResult{
		ID:         summary.ID,
		InputDir:   summary.InputDir,
		OutputDir:  summary.OutputDir,
		Params:     summary.Params,
		Clusters:   summary.Clusters,
		Noise:      summary.Noise,
		Silhouette: summary.Silhouette,
		DryRun:     summary.DryRun,
		CreatedAt:  summary.CreatedAt,
	}

	rows, err := s.db.Query(`SELECT path, label, vector FROM assignments WHERE run_id = ? ORDER BY position`, summary.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var path string
		var label int
		var raw sql.NullString
		if err := rows.Scan(&path, &label, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}

		img := core.Image{Path: path}
		if raw.Valid {
			if img.Features, err = deserializeVector(raw.String); err != nil {
				return nil, err
			}
		}
		run.Images = append(run.Images, img)
		run.Labels = append(run.Labels, label)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if run.ClusterSilhouettes, err = s.clusterScores(summary.ID); err != nil {
		return nil, err
	}
	if run.Failures, err = s.runFailures(summary.ID); err != nil {
		return nil, err
	}

	return run, nil
}

func (s *Store) clusterScores(runID string) (map[int]float64, error) {
	rows, err := s.db.Query(`SELECT label, silhouette FROM cluster_scores WHERE run_id = ?`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query cluster scores: %w", err)
	}
	defer rows.Close()

	var scores map[int]float64
	for rows.Next() {
		var label int
		var score float64
		if err := rows.Scan(&label, &score); err != nil {
			return nil, fmt.Errorf("failed to scan cluster score: %w", err)
		}
		if scores == nil {
			scores = make(map[int]float64)
		}
		scores[label] = score
	}
	return scores, rows.Err()
}

func (s *Store) runFailures(runID string) ([]core.ItemError, error) {
	rows, err := s.db.Query(`SELECT path, stage, error FROM run_failures WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run failures: %w", err)
	}
	defer rows.Close()

	var failures []core.ItemError
	for rows.Next() {
		var failure core.ItemError
		var msg sql.NullString
		if err := rows.Scan(&failure.Path, &failure.Stage, &msg); err != nil {
			return nil, fmt.Errorf("failed to scan run failure: %w", err)
		}
		failure.Err = msg.String
		failures = append(failures, failure)
	}
	return failures, rows.Err()
}

func (s *Store) findRun(id string) (RunSummary, error) {
	var rows *sql.Rows
	var err error
	if id == "" {
		rows, err = s.db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC LIMIT 1`)
	} else {
		rows, err = s.db.Query(`SELECT `+runColumns+` FROM runs WHERE id LIKE ? ESCAPE '\' LIMIT 2`, escapeLike(id)+"%")
	}
	if err != nil {
		return RunSummary{}, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var matches []RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return RunSummary{}, err
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return RunSummary{}, err
	}

	switch len(matches) {
	case 0:
		if id == "" {
			return RunSummary{}, fmt.Errorf("%w: no runs recorded", ErrRunNotFound)
		}
		return RunSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return RunSummary{}, fmt.Errorf("%w: %s", ErrAmbiguousRunID, id)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (RunSummary, error) {
	var run RunSummary
	err := row.Scan(
		&run.ID,
		&run.InputDir,
		&run.OutputDir,
		&run.Params.Eps,
		&run.Params.MinSamples,
		&run.Params.Metric,
		&run.Images,
		&run.Clusters,
		&run.Noise,
		&run.Failures,
		&run.Silhouette,
		&run.DryRun,
		&run.CreatedAt,
	)
	if err != nil {
		return RunSummary{}, fmt.Errorf("failed to scan run: %w", err)
	}
	return run, nil
}

// CacheStats represents cache statistics
type CacheStats struct {
	FeatureCount    int
	RunCount        int
	AssignmentCount int
	CacheSize       int64
	LastUpdated     time.Time
}

// GetCacheStats returns statistics about the cache
func (s *Store) GetCacheStats() (*CacheStats, error) {
	stats := &CacheStats{}

	// Get counts
	queries := map[string]*int{
		"SELECT COUNT(*) FROM features":    &stats.FeatureCount,
		"SELECT COUNT(*) FROM runs":        &stats.RunCount,
		"SELECT COUNT(*) FROM assignments": &stats.AssignmentCount,
	}

	for query, target := range queries {
		err := s.db.QueryRow(query).Scan(target)
		if err != nil {
			return nil, fmt.Errorf("failed to get count: %w", err)
		}
	}

	// Get cache size (file size)
	if fileInfo, err := os.Stat(s.path); err == nil {
		stats.CacheSize = fileInfo.Size()
		stats.LastUpdated = fileInfo.ModTime()
	}

	return stats, nil
}

// ClearCache removes all cached feature vectors. With includeRuns the run
// history is removed as well.
func (s *Store) ClearCache(includeRuns bool) error {
	tables := []string{"features"}
	if includeRuns {
		tables = append(tables, "assignments", "cluster_scores", "run_failures", "runs")
	}

	for _, table := range tables {
		_, err := s.db.Exec(fmt.Sprintf("DELETE FROM %s", table))
		if err != nil {
			return fmt.Errorf("failed to clear %s table: %w", table, err)
		}
	}

	// Vacuum to reclaim space
	_, err := s.db.Exec("VACUUM")
	if err != nil {
		return fmt.Errorf("failed to vacuum database: %w", err)
	}

	return nil
}

// ContentHash returns the hex SHA-256 of data, used as the cache key
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func serializeVector(vec core.Vector) (string, error) {
	if vec == nil {
		vec = core.Vector{}
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return "", fmt.Errorf("failed to encode vector: %w", err)
	}
	return string(data), nil
}

func deserializeVector(raw string) (core.Vector, error) {
	var vec core.Vector
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, fmt.Errorf("failed to decode vector: %w", err)
	}
	return vec, nil
}

// escapeLike neutralizes LIKE wildcards in user supplied prefixes
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

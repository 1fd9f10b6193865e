// Package store persists pipeline outputs as flat relational tables in
// DuckDB: differential expression results, enrichment results, and
// reference gene sets for reuse across runs.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/refstab/destat/internal/contrast"
	"github.com/refstab/destat/internal/enrich"
	"github.com/refstab/destat/internal/refgenes"
)

// Store manages a DuckDB connection for pipeline results.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates a DuckDB database at the given path.
// Use an empty string for an in-memory database.
func Open(path string) (*Store, error) {
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create result directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for direct access.
func (s *Store) DB() *sql.DB {
	return s.db
}

// ensureSchema creates tables if they don't exist. The tables carry no
// key constraints: rewriting a run deletes and reinserts the same
// identifiers in one transaction, which DuckDB rejects under an index.
func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS de_results (
			run_name VARCHAR,
			contrast VARCHAR,
			gene_id VARCHAR,
			base_mean DOUBLE,
			log2_fold_change DOUBLE,
			lfc_se DOUBLE,
			stat DOUBLE,
			pvalue DOUBLE,
			padj DOUBLE,
			converged BOOLEAN,
			low_confidence BOOLEAN
		)`,
		`CREATE TABLE IF NOT EXISTS enrichment_results (
			run_name VARCHAR,
			set_name VARCHAR,
			stat DOUBLE,
			pvalue DOUBLE,
			direction VARCHAR
		)`,
		`CREATE TABLE IF NOT EXISTS ref_genes (
			set_name VARCHAR,
			gene_id VARCHAR,
			cv_percent DOUBLE,
			rank INTEGER
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SaveDETable stores every row of a differential expression table under
// a run name, replacing any previous rows for the same run and contrast.
func (s *Store) SaveDETable(runName string, t *contrast.Table) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM de_results WHERE run_name = ? AND contrast = ?`, runName, t.Contrast); err != nil {
		return fmt.Errorf("clear previous run: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO de_results VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range t.Results {
		r := &t.Results[i]
		if _, err := stmt.Exec(runName, t.Contrast, r.GeneID,
			r.BaseMean, r.Log2FoldChange, r.StdErr, r.Stat,
			nullable(r.PValue), nullable(r.PAdj),
			r.Converged, r.LowConfidence); err != nil {
			return fmt.Errorf("insert gene %s: %w", r.GeneID, err)
		}
	}
	return tx.Commit()
}

// SaveEnrichment stores enrichment results under a run name.
func (s *Store) SaveEnrichment(runName string, results []enrich.Result) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM enrichment_results WHERE run_name = ?`, runName); err != nil {
		return fmt.Errorf("clear previous run: %w", err)
	}
	for _, r := range results {
		if _, err := tx.Exec(`INSERT INTO enrichment_results VALUES (?, ?, ?, ?, ?)`,
			runName, r.Name, r.Stat, r.PValue, r.Direction); err != nil {
			return fmt.Errorf("insert set %s: %w", r.Name, err)
		}
	}
	return tx.Commit()
}

// SaveRefGeneSet stores a reference gene set under a name, replacing any
// previous set with that name.
func (s *Store) SaveRefGeneSet(setName string, set *refgenes.ReferenceGeneSet) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM ref_genes WHERE set_name = ?`, setName); err != nil {
		return fmt.Errorf("clear previous set: %w", err)
	}
	for i, g := range set.Genes {
		if _, err := tx.Exec(`INSERT INTO ref_genes VALUES (?, ?, ?, ?)`,
			setName, g.ID, g.CV, i+1); err != nil {
			return fmt.Errorf("insert gene %s: %w", g.ID, err)
		}
	}
	return tx.Commit()
}

// LoadRefGeneSet loads a stored reference gene set by name, in rank
// order.
func (s *Store) LoadRefGeneSet(setName string) (*refgenes.ReferenceGeneSet, error) {
	rows, err := s.db.Query(`SELECT gene_id, cv_percent FROM ref_genes WHERE set_name = ? ORDER BY rank`, setName)
	if err != nil {
		return nil, fmt.Errorf("query ref genes: %w", err)
	}
	defer rows.Close()

	set := &refgenes.ReferenceGeneSet{}
	for rows.Next() {
		var g refgenes.RefGene
		if err := rows.Scan(&g.ID, &g.CV); err != nil {
			return nil, fmt.Errorf("scan ref gene: %w", err)
		}
		set.Genes = append(set.Genes, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(set.Genes) == 0 {
		return nil, fmt.Errorf("no reference gene set named %q", setName)
	}
	return set, nil
}

func nullable(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

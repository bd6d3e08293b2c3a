package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"vfd/internal/models"
	"vfd/internal/providers"
	"vfd/internal/structures"

	json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned for reads that match no row.
var ErrNotFound = errors.New("not found")

// StoreInterface is the contract on the structured storage collaborator.
// Samples and trait sets are append-only; status transitions go through
// ClaimComputation/CompleteComputation/FailComputation, which are atomic
// single-row conditional updates.
type StoreInterface interface {
	CreateSample(ctx context.Context, sample *models.Sample) error
	SamplesByOwner(ctx context.Context, ownerID string) ([]*models.Sample, error)
	SamplesByFingerprint(ctx context.Context, fingerprintID string) ([]*models.Sample, error)
	CountSamplesByOwner(ctx context.Context, ownerID string) (samples int, words int, err error)
	AttachSamples(ctx context.Context, ownerID, fingerprintID string) error

	CreateFingerprint(ctx context.Context, fp *models.VoiceFingerprint) error
	FingerprintByID(ctx context.Context, id string) (*models.VoiceFingerprint, error)
	FingerprintByOwner(ctx context.Context, ownerID string) (*models.VoiceFingerprint, error)
	ClaimComputation(ctx context.Context, id string) (bool, error)
	CompleteComputation(ctx context.Context, id string, version int) (bool, error)
	FailComputation(ctx context.Context, id string) (bool, error)
	StaleActiveFingerprints(ctx context.Context) ([]string, error)

	SaveTraitSet(ctx context.Context, ts *models.TraitSet) error
	TraitSetByVersion(ctx context.Context, fingerprintID string, version int) (*models.TraitSet, error)

	UpsertLock(ctx context.Context, lock *models.Lock) error
	LocksByOwner(ctx context.Context, ownerID string) ([]*models.Lock, error)

	DeleteOwner(ctx context.Context, ownerID string) error
	Close() error
}

type SqliteStore struct {
	db          *sql.DB
	compressor  CompressorInterface
	compressMin int
	logger      providers.Logger
}

func NewSqliteStore(conf *structures.Config, compressor CompressorInterface, logger providers.Logger) (StoreInterface, error) {
	dsn := conf.Storage.Path + "?_busy_timeout=5000&_journal_mode=WAL"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err = InitDB(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate storage: %w", err)
	}

	logger.Infof(providers.TypeApp, "Storage ready at %s", conf.Storage.Path)

	return &SqliteStore{
		db:          db,
		compressor:  compressor,
		compressMin: conf.Storage.CompressMin,
		logger:      logger,
	}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

func (s *SqliteStore) CreateSample(ctx context.Context, sample *models.Sample) error {
	body := []byte(sample.Text)
	compressed := 0
	if len(body) >= s.compressMin {
		enc, err := s.compressor.Compress(body)
		if err != nil {
			return fmt.Errorf("compress sample: %w", err)
		}
		body = enc
		compressed = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO samples (id, owner_id, fingerprint_id, body, compressed, word_count, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sample.ID, sample.OwnerID, nullableString(sample.FingerprintID), body, compressed,
		sample.WordCount, sample.Source, sample.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert sample: %w", err)
	}
	return nil
}

func (s *SqliteStore) SamplesByOwner(ctx context.Context, ownerID string) ([]*models.Sample, error) {
	return s.querySamples(ctx,
		`SELECT id, owner_id, IFNULL(fingerprint_id, ''), body, compressed, word_count, source, created_at
		 FROM samples WHERE owner_id = ? ORDER BY created_at, id`, ownerID)
}

func (s *SqliteStore) SamplesByFingerprint(ctx context.Context, fingerprintID string) ([]*models.Sample, error) {
	return s.querySamples(ctx,
		`SELECT id, owner_id, IFNULL(fingerprint_id, ''), body, compressed, word_count, source, created_at
		 FROM samples WHERE fingerprint_id = ? ORDER BY created_at, id`, fingerprintID)
}

func (s *SqliteStore) querySamples(ctx context.Context, query string, arg string) ([]*models.Sample, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []*models.Sample
	for rows.Next() {
		var sm models.Sample
		var body []byte
		var compressed int
		if err := rows.Scan(&sm.ID, &sm.OwnerID, &sm.FingerprintID, &body, &compressed,
			&sm.WordCount, &sm.Source, &sm.CreatedAt); err != nil {
			return nil, err
		}
		if compressed == 1 {
			body, err = s.compressor.Decompress(body)
			if err != nil {
				return nil, fmt.Errorf("decompress sample %s: %w", sm.ID, err)
			}
		}
		sm.Text = string(body)
		samples = append(samples, &sm)
	}
	return samples, rows.Err()
}

func (s *SqliteStore) CountSamplesByOwner(ctx context.Context, ownerID string) (int, int, error) {
	var samples, words int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), IFNULL(SUM(word_count), 0) FROM samples WHERE owner_id = ?`,
		ownerID).Scan(&samples, &words)
	return samples, words, err
}

func (s *SqliteStore) AttachSamples(ctx context.Context, ownerID, fingerprintID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE samples SET fingerprint_id = ? WHERE owner_id = ? AND fingerprint_id IS NULL`,
		fingerprintID, ownerID)
	return err
}

func (s *SqliteStore) CreateFingerprint(ctx context.Context, fp *models.VoiceFingerprint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fingerprints (id, owner_id, status, version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		fp.ID, fp.OwnerID, fp.Status, fp.Version, fp.CreatedAt, fp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert fingerprint: %w", err)
	}
	return nil
}

func (s *SqliteStore) FingerprintByID(ctx context.Context, id string) (*models.VoiceFingerprint, error) {
	return s.queryFingerprint(ctx,
		`SELECT id, owner_id, status, version, created_at, updated_at FROM fingerprints WHERE id = ?`, id)
}

// FingerprintByOwner returns the owner's authoritative fingerprint: the
// active one when present, otherwise the most recently updated.
func (s *SqliteStore) FingerprintByOwner(ctx context.Context, ownerID string) (*models.VoiceFingerprint, error) {
	return s.queryFingerprint(ctx,
		`SELECT id, owner_id, status, version, created_at, updated_at FROM fingerprints
		 WHERE owner_id = ?
		 ORDER BY (status = 'active') DESC, updated_at DESC, created_at DESC LIMIT 1`, ownerID)
}

func (s *SqliteStore) queryFingerprint(ctx context.Context, query string, arg string) (*models.VoiceFingerprint, error) {
	var fp models.VoiceFingerprint
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&fp.ID, &fp.OwnerID, &fp.Status, &fp.Version, &fp.CreatedAt, &fp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &fp, nil
}

// ClaimComputation atomically moves a fingerprint into computing. The
// conditional update is the single-in-flight primitive: of two concurrent
// claims exactly one sees an affected row.
func (s *SqliteStore) ClaimComputation(ctx context.Context, id string) (bool, error) {
	return s.casStatus(ctx, id, models.ComputableStatuses(), models.StatusComputing, -1)
}

// CompleteComputation moves computing→active and sets the new version in the
// same row update.
func (s *SqliteStore) CompleteComputation(ctx context.Context, id string, version int) (bool, error) {
	return s.casStatus(ctx, id, []string{models.StatusComputing}, models.StatusActive, version)
}

func (s *SqliteStore) FailComputation(ctx context.Context, id string) (bool, error) {
	return s.casStatus(ctx, id, []string{models.StatusComputing}, models.StatusFailed, -1)
}

func (s *SqliteStore) casStatus(ctx context.Context, id string, from []string, to string, version int) (bool, error) {
	placeholders := strings.Repeat("?,", len(from))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]interface{}, 0, len(from)+4)
	query := `UPDATE fingerprints SET status = ?, updated_at = ?`
	args = append(args, to, time.Now().UTC())
	if version >= 0 {
		query += `, version = ?`
		args = append(args, version)
	}
	query += ` WHERE id = ? AND status IN (` + placeholders + `)`
	args = append(args, id)
	for _, f := range from {
		args = append(args, f)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SqliteStore) StaleActiveFingerprints(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT f.id FROM fingerprints f
		 WHERE f.status = 'active' AND EXISTS (
			SELECT 1 FROM samples sm WHERE sm.fingerprint_id = f.id AND sm.created_at > IFNULL(
				(SELECT MAX(t.created_at) FROM trait_sets t WHERE t.fingerprint_id = f.id),
				'1970-01-01'))`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SqliteStore) SaveTraitSet(ctx context.Context, ts *models.TraitSet) error {
	metrics, err := json.Marshal(ts.StylometricMetrics)
	if err != nil {
		return err
	}
	signature, err := json.Marshal(ts.SemanticSignature)
	if err != nil {
		return err
	}
	traits, err := json.Marshal(ts.SignatureTraits)
	if err != nil {
		return err
	}
	pitfalls, err := json.Marshal(ts.Pitfalls)
	if err != nil {
		return err
	}
	thresholds, err := json.Marshal(ts.TargetThresholds)
	if err != nil {
		return err
	}
	skipped, err := json.Marshal(ts.SkippedSamples)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO trait_sets (fingerprint_id, version, metrics, signature, traits, pitfalls, thresholds, summary, skipped_samples, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.FingerprintID, ts.Version, string(metrics), string(signature), string(traits),
		string(pitfalls), string(thresholds), ts.Summary, string(skipped), ts.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert trait set v%d: %w", ts.Version, err)
	}
	return nil
}

func (s *SqliteStore) TraitSetByVersion(ctx context.Context, fingerprintID string, version int) (*models.TraitSet, error) {
	var ts models.TraitSet
	var metrics, signature, traits, pitfalls, thresholds, skipped string
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint_id, version, metrics, signature, traits, pitfalls, thresholds, summary, IFNULL(skipped_samples, 'null'), created_at
		 FROM trait_sets WHERE fingerprint_id = ? AND version = ?`,
		fingerprintID, version).Scan(
		&ts.FingerprintID, &ts.Version, &metrics, &signature, &traits, &pitfalls,
		&thresholds, &ts.Summary, &skipped, &ts.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err = json.Unmarshal([]byte(metrics), &ts.StylometricMetrics); err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(signature), &ts.SemanticSignature); err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(traits), &ts.SignatureTraits); err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(pitfalls), &ts.Pitfalls); err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(thresholds), &ts.TargetThresholds); err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(skipped), &ts.SkippedSamples); err != nil {
		return nil, err
	}
	return &ts, nil
}

func (s *SqliteStore) UpsertLock(ctx context.Context, lock *models.Lock) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO locks (owner_id, category, enabled, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(owner_id, category) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at`,
		lock.OwnerID, lock.Category, boolToInt(lock.Enabled), lock.UpdatedAt)
	return err
}

func (s *SqliteStore) LocksByOwner(ctx context.Context, ownerID string) ([]*models.Lock, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner_id, category, enabled, updated_at FROM locks WHERE owner_id = ? ORDER BY category`,
		ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locks []*models.Lock
	for rows.Next() {
		var l models.Lock
		var enabled int
		if err := rows.Scan(&l.OwnerID, &l.Category, &enabled, &l.UpdatedAt); err != nil {
			return nil, err
		}
		l.Enabled = enabled == 1
		locks = append(locks, &l)
	}
	return locks, rows.Err()
}

// DeleteOwner cascades deletion of everything the account owns:
// fingerprints, their trait sets, samples and locks, in one transaction.
func (s *SqliteStore) DeleteOwner(ctx context.Context, ownerID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM trait_sets WHERE fingerprint_id IN (SELECT id FROM fingerprints WHERE owner_id = ?)`,
		ownerID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM fingerprints WHERE owner_id = ?`, ownerID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM samples WHERE owner_id = ?`, ownerID); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM locks WHERE owner_id = ?`, ownerID); err != nil {
		return err
	}
	return tx.Commit()
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Package rawstore persists incoming assessment submissions write-once,
// keyed by derived company/run identity. Stored payloads are immutable:
// a second write to an existing key is a contract violation.
package rawstore

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/assessment-cli/internal/identity"
	"github.com/sells-group/assessment-cli/internal/model"
)

var (
	// ErrDuplicateWrite is returned when a raw payload already exists for
	// the target (companyProfileID, assessmentRunID) key.
	ErrDuplicateWrite = errors.New("rawstore: duplicate write")

	// ErrIntegrityViolation is returned when a stored payload no longer
	// matches its recorded hash. Fatal for the run.
	ErrIntegrityViolation = errors.New("rawstore: integrity violation")

	// ErrNotFound is returned when no submission exists for the key.
	ErrNotFound = errors.New("rawstore: not found")
)

// IdentityHints carries the intake fields used to derive a stable company
// profile ID when one is not already assigned.
type IdentityHints struct {
	CompanyProfileID string // optional: reuse an existing profile
	CompanyName      string
	Domain           string
}

// WriteResult reports the outcome of a successful Store call.
type WriteResult struct {
	CompanyProfileID string `json:"company_profile_id"`
	AssessmentRunID  string `json:"assessment_run_id"`
	ContentHash      string `json:"content_hash"`
	PayloadHash      string `json:"payload_hash"`
	Path             string `json:"path"`
}

// RawPayload is the loosely-typed intake submission. Only the normalization
// transformers are allowed to cross from this opaque form into validated
// internal types.
type RawPayload struct {
	CompanyProfile json.RawMessage `json:"company_profile"`
	Questionnaire  json.RawMessage `json:"questionnaire"`
}

// manifest is the sidecar integrity record written next to each payload.
type manifest struct {
	CompanyProfileID string    `json:"company_profile_id"`
	AssessmentRunID  string    `json:"assessment_run_id"`
	ContentHash      string    `json:"content_hash"`
	PayloadHash      string    `json:"payload_hash"`
	CreatedAt        time.Time `json:"created_at"`
}

// Store is the write-once raw submission store rooted at a data directory.
type Store struct {
	root string
}

// New creates a Store rooted at dir.
func New(dir string) *Store {
	return &Store{root: dir}
}

func (s *Store) runDir(companyProfileID, runID string) string {
	return filepath.Join(s.root, "raw",
		identity.SanitizeKey(companyProfileID), identity.SanitizeKey(runID))
}

// Store derives identity from hints, assigns a fresh assessment run ID, and
// persists the payload write-once. A write to a key that already has
// content fails with ErrDuplicateWrite and leaves the original untouched.
func (s *Store) Store(raw []byte, hints IdentityHints) (*WriteResult, error) {
	var payload RawPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, eris.Wrap(err, "rawstore: decode submission")
	}

	companyProfileID := hints.CompanyProfileID
	if companyProfileID == "" {
		companyProfileID = identity.DeriveCompanyProfileID(hints.CompanyName, hints.Domain)
	}
	runID := identity.NewAssessmentRunID()

	canonical, err := identity.CanonicalJSON(payload)
	if err != nil {
		return nil, eris.Wrap(err, "rawstore: canonicalize payload")
	}

	result := &WriteResult{
		CompanyProfileID: companyProfileID,
		AssessmentRunID:  runID,
		ContentHash:      identity.ContentHash(raw),
		PayloadHash:      identity.ContentHash(canonical),
	}

	dir := s.runDir(companyProfileID, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "rawstore: mkdir %s", dir)
	}

	path := filepath.Join(dir, "payload.json")
	if err := writeExclusive(path, canonical); err != nil {
		return nil, err
	}
	result.Path = path

	m := manifest{
		CompanyProfileID: companyProfileID,
		AssessmentRunID:  runID,
		ContentHash:      result.ContentHash,
		PayloadHash:      result.PayloadHash,
		CreatedAt:        time.Now().UTC(),
	}
	manifestBytes, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, eris.Wrap(err, "rawstore: marshal manifest")
	}
	if err := writeExclusive(filepath.Join(dir, "manifest.json"), manifestBytes); err != nil {
		return nil, err
	}

	zap.L().Info("rawstore: submission stored",
		zap.String("company_profile_id", companyProfileID),
		zap.String("run_id", runID),
		zap.String("payload_hash", result.PayloadHash),
	)
	return result, nil
}

// writeExclusive creates path with O_EXCL so an existing file is never
// overwritten.
func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return eris.Wrapf(ErrDuplicateWrite, "key %s", path)
		}
		return eris.Wrapf(err, "rawstore: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.Write(data); err != nil {
		return eris.Wrapf(err, "rawstore: write %s", path)
	}
	return f.Sync()
}

// Load reads the stored submission and its manifest for the given key.
func (s *Store) Load(companyProfileID, runID string) (*model.RawAssessment, error) {
	dir := s.runDir(companyProfileID, runID)

	payloadBytes, err := os.ReadFile(filepath.Join(dir, "payload.json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(ErrNotFound, "key %s/%s", companyProfileID, runID)
		}
		return nil, eris.Wrap(err, "rawstore: read payload")
	}

	manifestBytes, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return nil, eris.Wrap(err, "rawstore: read manifest")
	}
	var m manifest
	if err := json.Unmarshal(manifestBytes, &m); err != nil {
		return nil, eris.Wrap(err, "rawstore: decode manifest")
	}

	var payload RawPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		return nil, eris.Wrap(err, "rawstore: decode payload")
	}

	return &model.RawAssessment{
		CompanyProfileID:  m.CompanyProfileID,
		AssessmentRunID:   m.AssessmentRunID,
		RawCompanyProfile: payload.CompanyProfile,
		RawQuestionnaire:  payload.Questionnaire,
		ContentHash:       m.ContentHash,
		PayloadHash:       m.PayloadHash,
		CreatedAt:         m.CreatedAt,
	}, nil
}

// Verify recomputes the payload hash and compares it to the manifest. A
// mismatch is an ErrIntegrityViolation, fatal for the run.
func (s *Store) Verify(companyProfileID, runID string) (bool, error) {
	dir := s.runDir(companyProfileID, runID)

	payloadBytes, err := os.ReadFile(filepath.Join(dir, "payload.json"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, eris.Wrapf(ErrNotFound, "key %s/%s", companyProfileID, runID)
		}
		return false, eris.Wrap(err, "rawstore: read payload")
	}

	manifestBytes, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		return false, eris.Wrap(err, "rawstore: read manifest")
	}
	var m manifest
	if err := json.Unmarshal(manifestBytes, &m); err != nil {
		return false, eris.Wrap(err, "rawstore: decode manifest")
	}

	if identity.ContentHash(payloadBytes) != m.PayloadHash {
		zap.L().Error("rawstore: payload hash mismatch",
			zap.String("company_profile_id", companyProfileID),
			zap.String("run_id", runID),
		)
		return false, eris.Wrapf(ErrIntegrityViolation, "key %s/%s", companyProfileID, runID)
	}
	return true, nil
}

package rawstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

var sampleSubmission = []byte(`{
	"company_profile": {"name": "Acme Widgets", "domain": "acme.com", "industry": "Manufacturing", "employee_count": 120},
	"questionnaire": {"answers": [{"question_key": "strategy_q1", "category": "strategy", "score": 4}]}
}`)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(t.TempDir())
}

func TestStore_WriteAndLoad(t *testing.T) {
	s := newTestStore(t)

	res, err := s.Store(sampleSubmission, IdentityHints{CompanyName: "Acme Widgets", Domain: "acme.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.CompanyProfileID == "" || res.AssessmentRunID == "" {
		t.Fatal("expected derived identity")
	}
	if res.PayloadHash == "" || res.ContentHash == "" {
		t.Fatal("expected hashes")
	}

	raw, err := s.Load(res.CompanyProfileID, res.AssessmentRunID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if raw.PayloadHash != res.PayloadHash {
		t.Errorf("payload hash mismatch: %s vs %s", raw.PayloadHash, res.PayloadHash)
	}
	if len(raw.RawCompanyProfile) == 0 || len(raw.RawQuestionnaire) == 0 {
		t.Error("expected raw sections to round-trip")
	}
}

func TestStore_DuplicateWriteRejected(t *testing.T) {
	s := newTestStore(t)

	res, err := s.Store(sampleSubmission, IdentityHints{CompanyName: "Acme", Domain: "acme.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A second write to the same derived key must fail and leave the
	// original bytes unchanged.
	path := filepath.Join(s.root, "raw", res.CompanyProfileID, res.AssessmentRunID, "payload.json")
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}

	err = writeExclusive(path, []byte("overwrite attempt"))
	if !errors.Is(err, ErrDuplicateWrite) {
		t.Fatalf("expected ErrDuplicateWrite, got %v", err)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	if string(before) != string(after) {
		t.Error("original payload was modified by rejected write")
	}
}

func TestVerify_DetectsByteFlip(t *testing.T) {
	s := newTestStore(t)

	res, err := s.Store(sampleSubmission, IdentityHints{CompanyName: "Acme", Domain: "acme.com"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ok, err := s.Verify(res.CompanyProfileID, res.AssessmentRunID)
	if err != nil || !ok {
		t.Fatalf("expected clean verify, got ok=%v err=%v", ok, err)
	}

	// Flip one byte of the stored payload.
	path := filepath.Join(s.root, "raw", res.CompanyProfileID, res.AssessmentRunID, "payload.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read payload: %v", err)
	}
	data[len(data)/2] ^= 0x01
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write tampered payload: %v", err)
	}

	ok, err = s.Verify(res.CompanyProfileID, res.AssessmentRunID)
	if ok {
		t.Error("expected verification failure after byte flip")
	}
	if !errors.Is(err, ErrIntegrityViolation) {
		t.Errorf("expected ErrIntegrityViolation, got %v", err)
	}
}

func TestVerify_MissingKey(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Verify("cp_none", "run_none")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

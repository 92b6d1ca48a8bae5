package pipeline

import (
	"errors"
	"testing"

	"github.com/sells-group/assessment-cli/internal/rawstore"
)

func TestArtifactsRoundTrip(t *testing.T) {
	a := NewArtifacts(t.TempDir())
	key := a.Key("cp_acme", "run_1", ArtifactCompanyProfile, "v3")

	type payload struct {
		Name  string `json:"name"`
		Score int    `json:"score"`
	}
	if err := a.Write(key, payload{Name: "Acme", Score: 7}); err != nil {
		t.Fatalf("write: %v", err)
	}

	var got payload
	if err := a.Read(key, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Name != "Acme" || got.Score != 7 {
		t.Errorf("round trip = %+v", got)
	}
}

func TestArtifactsWriteOnce(t *testing.T) {
	a := NewArtifacts(t.TempDir())
	key := a.Key("cp_acme", "run_1", ArtifactPhase1, "p1-v1")

	if err := a.Write(key, map[string]int{"n": 1}); err != nil {
		t.Fatalf("first write: %v", err)
	}
	err := a.Write(key, map[string]int{"n": 2})
	if !errors.Is(err, rawstore.ErrDuplicateWrite) {
		t.Fatalf("second write err = %v, want ErrDuplicateWrite", err)
	}

	// The original content is untouched.
	var got map[string]int
	if err := a.Read(key, &got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got["n"] != 1 {
		t.Errorf("content = %v, first write must win", got)
	}
}

func TestArtifactsReadMissing(t *testing.T) {
	a := NewArtifacts(t.TempDir())
	var v map[string]any
	err := a.Read(a.Key("cp", "run", ArtifactIDM, "idm-v2"), &v)
	if !errors.Is(err, rawstore.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestArtifactKeysDifferByVersion(t *testing.T) {
	a := NewArtifacts(t.TempDir())
	k1 := a.Key("cp", "run", ArtifactPhase1, "p1-v1")
	k2 := a.Key("cp", "run", ArtifactPhase1, "p1-v2")
	if k1 == k2 {
		t.Error("version must be part of the key")
	}
}

package pipeline

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/assessment-cli/internal/identity"
	"github.com/sells-group/assessment-cli/internal/rawstore"
)

// Artifact names registered in the index per phase.
const (
	ArtifactCompanyProfile = "normalized_company_profile"
	ArtifactQuestionnaire  = "normalized_questionnaire"
	ArtifactPhase1         = "phase1_results"
	ArtifactPhase15        = "phase1_5_output"
	ArtifactPhase2         = "phase2_results"
	ArtifactPhase3         = "phase3_output"
	ArtifactSynthesis      = "synthesis"
	ArtifactIDM            = "idm"
)

// Artifacts is the append-only phase artifact store rooted at a data
// directory. Artifacts are JSON files keyed by (companyProfileID, runID,
// phase, version); a key is written at most once.
type Artifacts struct {
	root string
}

// NewArtifacts creates an artifact store rooted at dir.
func NewArtifacts(dir string) *Artifacts {
	return &Artifacts{root: dir}
}

// Key builds the storage key for a phase artifact.
func (a *Artifacts) Key(companyProfileID, runID, phase, version string) string {
	return identity.ArtifactKey(companyProfileID, runID, phase, version)
}

// Write marshals v and persists it under key, write-once. A second write
// to the same key fails with rawstore.ErrDuplicateWrite.
func (a *Artifacts) Write(key string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "artifacts: marshal %s", key)
	}

	path := filepath.Join(a.root, "artifacts", filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "artifacts: mkdir for %s", key)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if eris.Is(err, fs.ErrExist) {
			return eris.Wrapf(rawstore.ErrDuplicateWrite, "artifact %s", key)
		}
		return eris.Wrapf(err, "artifacts: open %s", key)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return eris.Wrapf(err, "artifacts: write %s", key)
	}
	return f.Sync()
}

// Read loads the artifact at key into v.
func (a *Artifacts) Read(key string, v any) error {
	path := filepath.Join(a.root, "artifacts", filepath.FromSlash(key))
	data, err := os.ReadFile(path)
	if err != nil {
		if eris.Is(err, fs.ErrNotExist) {
			return eris.Wrapf(rawstore.ErrNotFound, "artifact %s", key)
		}
		return eris.Wrapf(err, "artifacts: read %s", key)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "artifacts: unmarshal %s", key)
	}
	return nil
}

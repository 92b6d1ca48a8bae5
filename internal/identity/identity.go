// Package identity provides deterministic content hashing and ID derivation
// for integrity verification and idempotent storage keys.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// legalSuffixes lists common legal entity suffixes stripped during
// company-name canonicalization so "Acme LLC" and "Acme, Inc." derive the
// same profile ID.
var legalSuffixes = []string{
	" llc", " l.l.c.",
	" inc", " inc.", " incorporated",
	" corp", " corp.", " corporation",
	" ltd", " ltd.", " limited",
	" lp", " l.p.",
	" llp", " l.l.p.",
	" plc", " p.l.c.",
	" co", " co.",
	" gmbh", " pllc",
}

var (
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
	unsafeKeyRe  = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// ContentHash returns the SHA-256 hex digest of b.
func ContentHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// CanonicalJSON re-encodes v with deterministically ordered object keys so
// hashes over the result are stable across encoders.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, eris.Wrap(err, "identity: marshal for canonicalization")
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, eris.Wrap(err, "identity: decode for canonicalization")
	}
	var sb strings.Builder
	if err := writeCanonical(&sb, decoded); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

func writeCanonical(sb *strings.Builder, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return eris.Wrap(err, "identity: marshal key")
			}
			sb.Write(kb)
			sb.WriteByte(':')
			if err := writeCanonical(sb, val[k]); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := writeCanonical(sb, item); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return eris.Wrap(err, "identity: marshal value")
		}
		sb.Write(b)
	}
	return nil
}

// CanonicalName lowercases, Unicode-normalizes, and strips legal suffixes
// and punctuation from a company name.
func CanonicalName(name string) string {
	name = norm.NFKC.String(strings.TrimSpace(name))
	name = cases.Lower(language.Und).String(name)

	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}

	name = strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
		"&", "and",
		"-", " ",
	).Replace(name)

	name = multiSpaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// CanonicalDomain lowercases a domain and strips scheme, www, port, and path.
func CanonicalDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimPrefix(domain, "www.")
	if i := strings.IndexAny(domain, "/:?#"); i >= 0 {
		domain = domain[:i]
	}
	return domain
}

// DeriveCompanyProfileID derives a stable profile ID from identity hints.
// The same company name and domain always yield the same ID.
func DeriveCompanyProfileID(name, domain string) string {
	seed := CanonicalName(name) + "|" + CanonicalDomain(domain)
	return "cp_" + ContentHash([]byte(seed))[:16]
}

// NewAssessmentRunID returns a fresh run ID for a new submission.
func NewAssessmentRunID() string {
	return "run_" + uuid.New().String()
}

// SanitizeKey reduces an identity string to a storage-safe path segment.
// Attacker-controlled identity strings must never influence directory
// structure.
func SanitizeKey(s string) string {
	s = strings.ReplaceAll(s, "..", "")
	s = unsafeKeyRe.ReplaceAllString(s, "_")
	s = strings.Trim(s, "._")
	if s == "" {
		return "unknown"
	}
	return s
}

// ArtifactKey builds the well-known storage key for a phase artifact.
func ArtifactKey(companyProfileID, runID, phase, version string) string {
	return fmt.Sprintf("%s/%s/%s_%s.json",
		SanitizeKey(companyProfileID), SanitizeKey(runID),
		SanitizeKey(phase), SanitizeKey(version))
}

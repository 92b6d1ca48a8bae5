package identity

import (
	"strings"
	"testing"
)

func TestContentHash_Deterministic(t *testing.T) {
	a := ContentHash([]byte("hello"))
	b := ContentHash([]byte("hello"))
	if a != b {
		t.Errorf("hash not deterministic: %s vs %s", a, b)
	}
	if a == ContentHash([]byte("hello!")) {
		t.Error("distinct inputs produced identical hashes")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
}

func TestCanonicalJSON_KeyOrderIndependent(t *testing.T) {
	a, err := CanonicalJSON(map[string]any{"b": 1, "a": []any{"x", map[string]any{"z": true, "y": nil}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := CanonicalJSON(map[string]any{"a": []any{"x", map[string]any{"y": nil, "z": true}}, "b": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(a) != string(b) {
		t.Errorf("canonical forms differ:\n%s\n%s", a, b)
	}
	if !strings.HasPrefix(string(a), `{"a":`) {
		t.Errorf("keys not sorted: %s", a)
	}
}

func TestDeriveCompanyProfileID_StableAcrossVariants(t *testing.T) {
	a := DeriveCompanyProfileID("Acme Widgets, Inc.", "https://www.acme-widgets.com/about")
	b := DeriveCompanyProfileID("acme widgets", "acme-widgets.com")
	if a != b {
		t.Errorf("expected stable ID across name variants: %s vs %s", a, b)
	}
	c := DeriveCompanyProfileID("Other Co", "acme-widgets.com")
	if a == c {
		t.Error("distinct companies derived identical IDs")
	}
	if !strings.HasPrefix(a, "cp_") {
		t.Errorf("unexpected ID shape: %s", a)
	}
}

func TestSanitizeKey_PathTraversal(t *testing.T) {
	cases := map[string]string{
		"../../etc/passwd": "etc_passwd",
		"normal-key_1.2":   "normal-key_1.2",
		"a/b\\c":           "a_b_c",
		"..":               "unknown",
	}
	for in, want := range cases {
		if got := SanitizeKey(in); got != want {
			t.Errorf("SanitizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestArtifactKey(t *testing.T) {
	key := ArtifactKey("cp_abc", "run_1", "phase1", "v3")
	if key != "cp_abc/run_1/phase1_v3.json" {
		t.Errorf("unexpected artifact key: %s", key)
	}
	evil := ArtifactKey("../x", "run/../1", "phase1", "v3")
	if strings.Contains(evil, "..") {
		t.Errorf("artifact key leaked traversal: %s", evil)
	}
}

package secrets

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("VCMATCH_TEST_SECRET", "  from-env \n")

	value, err := Load(Source{Name: "test secret", Env: "VCMATCH_TEST_SECRET"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "from-env" {
		t.Fatalf("value = %q, expected trimmed env value", value)
	}
}

func TestLoadEnvWinsOverFile(t *testing.T) {
	t.Setenv("VCMATCH_TEST_SECRET", "from-env")

	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("from-file"), 0o600); err != nil {
		t.Fatalf("writing secret file: %v", err)
	}

	value, err := Load(Source{Name: "test secret", Env: "VCMATCH_TEST_SECRET", File: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "from-env" {
		t.Fatalf("value = %q, expected env to win", value)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("from-file\n"), 0o600); err != nil {
		t.Fatalf("writing secret file: %v", err)
	}

	value, err := Load(Source{Name: "test secret", File: path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "from-file" {
		t.Fatalf("value = %q, expected trimmed file value", value)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(Source{Name: "test secret", File: filepath.Join(t.TempDir(), "absent")})
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadUnresolvable(t *testing.T) {
	if _, err := Load(Source{Name: "test secret"}); err == nil {
		t.Fatalf("expected error when no source is configured")
	}
}

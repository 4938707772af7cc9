package vault

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveKeyRef_Env(t *testing.T) {
	v := New()
	t.Setenv("TEST_PROMPTSTUDIO_SECRET", "tok-1234")

	got, err := v.ResolveKeyRef("env:TEST_PROMPTSTUDIO_SECRET")
	if err != nil {
		t.Fatalf("ResolveKeyRef(env:): %v", err)
	}
	if got != "tok-1234" {
		t.Errorf("got %q, want %q", got, "tok-1234")
	}
}

func TestResolveKeyRef_EnvUnset(t *testing.T) {
	v := New()
	os.Unsetenv("NONEXISTENT_PROMPTSTUDIO_VAR")

	_, err := v.ResolveKeyRef("env:NONEXISTENT_PROMPTSTUDIO_VAR")
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("got %v, want ErrNoCredential", err)
	}
}

func TestResolveKeyRef_Empty(t *testing.T) {
	got, err := New().ResolveKeyRef("")
	if err != nil || got != "" {
		t.Errorf("empty ref: got (%q, %v), want empty secret and no error", got, err)
	}
}

func TestResolveKeyRef_Invalid(t *testing.T) {
	v := New()
	for _, ref := range []string{
		"plaintext:secret",
		"keyring://badformat",
		"keyring://other-service/enrichment",
		"keyring://promptstudio/",
		"keychain:promptstudio/enrichment",
	} {
		if _, err := v.ResolveKeyRef(ref); err == nil {
			t.Errorf("ResolveKeyRef(%q): expected error", ref)
		}
	}
}

func TestResolveKeyRef_KeyringFallsBackToEnv(t *testing.T) {
	v := New()
	t.Setenv("PROMPTSTUDIO_KEY_TEST_ONLY_CRED", "from-env")

	got, err := v.ResolveKeyRef("keyring://promptstudio/test-only-cred")
	if err != nil {
		t.Fatalf("ResolveKeyRef: %v", err)
	}
	if got != "from-env" {
		t.Errorf("got %q, want %q", got, "from-env")
	}
}

func TestResolveKeyRef_File(t *testing.T) {
	v := New()
	path := filepath.Join(t.TempDir(), "secret.txt")
	if err := os.WriteFile(path, []byte("file-secret\n"), 0o600); err != nil {
		t.Fatalf("writing key file: %v", err)
	}

	got, err := v.ResolveKeyRef("file://" + path)
	if err != nil {
		t.Fatalf("ResolveKeyRef(file://): %v", err)
	}
	if got != "file-secret" {
		t.Errorf("got %q, want %q", got, "file-secret")
	}
}

func TestResolveKeyRef_FileProblems(t *testing.T) {
	v := New()
	if _, err := v.ResolveKeyRef("file:///nonexistent/promptstudio/key.txt"); err == nil {
		t.Error("expected error for missing key file")
	}

	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, []byte("  \n"), 0o600); err != nil {
		t.Fatalf("writing key file: %v", err)
	}
	if _, err := v.ResolveKeyRef("file://" + path); err == nil {
		t.Error("expected error for empty key file")
	}
}

func TestGet_NotFound(t *testing.T) {
	os.Unsetenv("PROMPTSTUDIO_KEY_NO_SUCH_CRED")
	_, err := New().Get("no-such-cred")
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("got %v, want ErrNoCredential", err)
	}
}

func TestEnvName(t *testing.T) {
	if got := envName("system-webhook"); got != "PROMPTSTUDIO_KEY_SYSTEM_WEBHOOK" {
		t.Errorf("envName: got %q", got)
	}
}

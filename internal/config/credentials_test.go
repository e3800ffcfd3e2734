package config

import "testing"

func TestCredentials_GetSetAPIKey(t *testing.T) {
	c := &Credentials{}
	if got := c.GetAPIKey("anthropic"); got != "" {
		t.Errorf("GetAPIKey on empty = %q, want empty", got)
	}
	c.SetAPIKey("anthropic", "sk-test-123")
	if got := c.GetAPIKey("anthropic"); got != "sk-test-123" {
		t.Errorf("GetAPIKey = %q", got)
	}
}

func TestCredentials_ResolveAPIKey_EnvTakesPriority(t *testing.T) {
	t.Setenv("TEST_API_KEY_ENV", "env-value")
	c := &Credentials{}
	c.SetAPIKey("test", "file-value")

	got := c.ResolveAPIKey("test", "TEST_API_KEY_ENV")
	if got != "env-value" {
		t.Errorf("ResolveAPIKey = %q, want env-value", got)
	}
}

func TestCredentials_ResolveAPIKey_FallsBackToFile(t *testing.T) {
	c := &Credentials{}
	c.SetAPIKey("test", "file-value")

	got := c.ResolveAPIKey("test", "TEST_API_KEY_ENV_UNSET")
	if got != "file-value" {
		t.Errorf("ResolveAPIKey = %q, want file-value", got)
	}
}

func TestCredentials_ResolveAPIKey_NoEnvVarConfigured(t *testing.T) {
	c := &Credentials{}
	c.SetAPIKey("test", "file-value")

	got := c.ResolveAPIKey("test", "")
	if got != "file-value" {
		t.Errorf("ResolveAPIKey = %q, want file-value", got)
	}
}

func TestLoadCredentials_MissingFile(t *testing.T) {
	t.Setenv("IKIGAI_DATA_DIR", t.TempDir())
	creds, err := LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if creds.GetAPIKey("anthropic") != "" {
		t.Errorf("expected empty credentials")
	}
}

func TestSaveLoadCredentials_RoundTrip(t *testing.T) {
	t.Setenv("IKIGAI_DATA_DIR", t.TempDir())

	creds := &Credentials{}
	creds.SetAPIKey("openai", "sk-abc")
	if err := SaveCredentials(creds); err != nil {
		t.Fatalf("SaveCredentials: %v", err)
	}

	loaded, err := LoadCredentials()
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if got := loaded.GetAPIKey("openai"); got != "sk-abc" {
		t.Errorf("GetAPIKey = %q, want sk-abc", got)
	}
}

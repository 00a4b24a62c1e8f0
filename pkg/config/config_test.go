package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Fatalf("default addr: %q", cfg.Server.Addr)
	}
	if cfg.Realtime.TypingTTLSeconds != 6 || cfg.Realtime.PresenceTTLSeconds != 45 {
		t.Fatalf("default ttls: %+v", cfg.Realtime)
	}
	if cfg.Realtime.FanoutBuffer != 256 {
		t.Fatalf("default fanout buffer: %d", cfg.Realtime.FanoutBuffer)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("default log level: %q", cfg.Logging.Level)
	}
}

func TestLoadYAMLAndEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  addr: ":9000"
storage:
  db_path: /tmp/chat
realtime:
  typing_ttl_seconds: 3
security:
  backend_keys: ["bk1"]
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CHATCORE_ADDR", ":7000")
	t.Setenv("CHATCORE_ADMIN_KEYS", "ak1, ak2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// env wins over yaml
	if cfg.Server.Addr != ":7000" {
		t.Fatalf("addr: %q", cfg.Server.Addr)
	}
	if cfg.Storage.DBPath != "/tmp/chat" {
		t.Fatalf("db path: %q", cfg.Storage.DBPath)
	}
	if cfg.Realtime.TypingTTLSeconds != 3 {
		t.Fatalf("typing ttl: %d", cfg.Realtime.TypingTTLSeconds)
	}
	if len(cfg.Security.AdminKeys) != 2 || cfg.Security.AdminKeys[1] != "ak2" {
		t.Fatalf("admin keys: %v", cfg.Security.AdminKeys)
	}
}

func TestValidate(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// no keys, no allow_unauth
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for keyless config")
	}
	cfg.Security.AllowUnauth = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("allow_unauth config should validate: %v", err)
	}

	// frontend keys require signing keys
	cfg.Security.AllowUnauth = false
	cfg.Security.FrontendKeys = []string{"fk"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for frontend keys without signing keys")
	}
	cfg.Security.SigningKeys = []string{"sk"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("signed config should validate: %v", err)
	}

	// tls pair must be complete
	cfg.Server.TLSCert = "cert.pem"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for cert without key")
	}
}

func TestKeySet(t *testing.T) {
	set := KeySet([]string{" a ", "", "b"})
	if len(set) != 2 {
		t.Fatalf("expected 2 keys, got %v", set)
	}
	if _, ok := set["a"]; !ok {
		t.Fatal("keys must be trimmed")
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration. YAML first, then CHATCORE_*
// environment variables overlay individual fields.
type Config struct {
	Server struct {
		Addr    string `yaml:"addr"`
		TLSCert string `yaml:"tls_cert"`
		TLSKey  string `yaml:"tls_key"`
	} `yaml:"server"`

	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`

	Realtime struct {
		TypingTTLSeconds   int    `yaml:"typing_ttl_seconds"`
		PresenceTTLSeconds int    `yaml:"presence_ttl_seconds"`
		FanoutBuffer       int    `yaml:"fanout_buffer"`
		RepairCron         string `yaml:"repair_cron"`
	} `yaml:"realtime"`

	Security struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
		RPS            float64  `yaml:"rps"`
		Burst          int      `yaml:"burst"`
		IPWhitelist    []string `yaml:"ip_whitelist"`
		FrontendKeys   []string `yaml:"frontend_keys"`
		BackendKeys    []string `yaml:"backend_keys"`
		AdminKeys      []string `yaml:"admin_keys"`
		SigningKeys    []string `yaml:"signing_keys"`
		AllowUnauth    bool     `yaml:"allow_unauth"`
	} `yaml:"security"`

	Limits struct {
		MaxContentLen   int      `yaml:"max_content_len"`
		MaxAttachments  int      `yaml:"max_attachments"`
		MaxReactionLen  int      `yaml:"max_reaction_len"`
		MaxParticipants int      `yaml:"max_participants"`
		AllowedTypes    []string `yaml:"allowed_types"`
	} `yaml:"limits"`

	Notify struct {
		URL            string `yaml:"url"`
		Bearer         string `yaml:"bearer"`
		QueueSize      int    `yaml:"queue_size"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"notify"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Load reads the YAML file at path (optional), applies environment
// overrides, and fills defaults.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("CHATCORE_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("CHATCORE_TLS_CERT"); v != "" {
		cfg.Server.TLSCert = v
	}
	if v := os.Getenv("CHATCORE_TLS_KEY"); v != "" {
		cfg.Server.TLSKey = v
	}
	if v := os.Getenv("CHATCORE_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("CHATCORE_TYPING_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Realtime.TypingTTLSeconds = n
		}
	}
	if v := os.Getenv("CHATCORE_PRESENCE_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Realtime.PresenceTTLSeconds = n
		}
	}
	if v := os.Getenv("CHATCORE_FANOUT_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Realtime.FanoutBuffer = n
		}
	}
	if v := os.Getenv("CHATCORE_REPAIR_CRON"); v != "" {
		cfg.Realtime.RepairCron = v
	}
	if v := os.Getenv("CHATCORE_ALLOWED_ORIGINS"); v != "" {
		cfg.Security.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("CHATCORE_FRONTEND_KEYS"); v != "" {
		cfg.Security.FrontendKeys = splitList(v)
	}
	if v := os.Getenv("CHATCORE_BACKEND_KEYS"); v != "" {
		cfg.Security.BackendKeys = splitList(v)
	}
	if v := os.Getenv("CHATCORE_ADMIN_KEYS"); v != "" {
		cfg.Security.AdminKeys = splitList(v)
	}
	if v := os.Getenv("CHATCORE_SIGNING_KEYS"); v != "" {
		cfg.Security.SigningKeys = splitList(v)
	}
	if v := os.Getenv("CHATCORE_ALLOW_UNAUTH"); v != "" {
		cfg.Security.AllowUnauth = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("CHATCORE_NOTIFY_URL"); v != "" {
		cfg.Notify.URL = v
	}
	if v := os.Getenv("CHATCORE_NOTIFY_BEARER"); v != "" {
		cfg.Notify.Bearer = v
	}
	if v := os.Getenv("CHATCORE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = "./data/chatcore"
	}
	if cfg.Realtime.TypingTTLSeconds <= 0 {
		cfg.Realtime.TypingTTLSeconds = 6
	}
	if cfg.Realtime.PresenceTTLSeconds <= 0 {
		cfg.Realtime.PresenceTTLSeconds = 45
	}
	if cfg.Realtime.FanoutBuffer <= 0 {
		cfg.Realtime.FanoutBuffer = 256
	}
	if cfg.Realtime.RepairCron == "" {
		cfg.Realtime.RepairCron = "0 4 * * *"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate rejects configurations that cannot serve traffic.
func (c Config) Validate() error {
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if !c.Security.AllowUnauth &&
		len(c.Security.FrontendKeys) == 0 &&
		len(c.Security.BackendKeys) == 0 &&
		len(c.Security.AdminKeys) == 0 {
		return fmt.Errorf("no API keys configured; set security keys or allow_unauth")
	}
	if len(c.Security.FrontendKeys) > 0 && len(c.Security.SigningKeys) == 0 {
		return fmt.Errorf("frontend keys require at least one signing key")
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		return fmt.Errorf("tls_cert and tls_key must be set together")
	}
	return nil
}

// KeySet converts a key list into the lookup form the auth package uses.
func KeySet(keys []string) map[string]struct{} {
	out := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out[k] = struct{}{}
		}
	}
	return out
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

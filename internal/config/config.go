package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the namespace prefix for all notewire environment variables.
const EnvPrefix = "NOTEWIRE_"

// Config holds all application configuration. Secrets (API keys) are loaded
// exclusively from environment variables and never appear in the config file.
type Config struct {
	ListenAddr            string `yaml:"listen_addr"`
	DBPath                string `yaml:"db_path"`
	AuditDir              string `yaml:"audit_dir"`
	FlushInterval         string `yaml:"flush_interval"`
	SaveTimeout           string `yaml:"save_timeout"`
	SpeakerRequired       bool   `yaml:"speaker_required"`
	Diarize               bool   `yaml:"diarize"`
	Language              string `yaml:"language"`
	Model                 string `yaml:"model"`
	SampleRate            int    `yaml:"sample_rate"`
	AudioInput            string `yaml:"audio_input"`
	GDriveFolderID        string `yaml:"gdrive_folder_id"`
	GoogleCredentialsFile string `yaml:"google_credentials_file"`

	// Secrets are env vars only, never serialized to YAML.
	DeepgramAPIKey string `yaml:"-"`
}

func defaults() Config {
	return Config{
		ListenAddr:            "127.0.0.1:8080",
		DBPath:                "data/notewire.db",
		AuditDir:              "data/audit",
		FlushInterval:         "30s",
		SaveTimeout:           "10s",
		SpeakerRequired:       true,
		Diarize:               true,
		Language:              "en-US",
		Model:                 "nova-2",
		SampleRate:            16000,
		AudioInput:            "-",
		GoogleCredentialsFile: "./service-account.json",
	}
}

// Load reads configuration from a YAML file (if it exists), applies
// environment variable overrides, loads secrets, and validates the result.
// It returns the config, any validation warnings, and an error if the file
// exists but cannot be read or parsed.
func Load(path string) (Config, []string, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, nil, fmt.Errorf("read config file: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, nil, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	loadSecrets(&cfg)

	warnings := validate(&cfg)
	return cfg, warnings, nil
}

// ParsedFlushInterval returns FlushInterval as a time.Duration,
// falling back to 30s if the value is invalid.
func (c *Config) ParsedFlushInterval() time.Duration {
	d, err := time.ParseDuration(c.FlushInterval)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// ParsedSaveTimeout returns SaveTimeout as a time.Duration,
// falling back to 10s if the value is invalid.
func (c *Config) ParsedSaveTimeout() time.Duration {
	d, err := time.ParseDuration(c.SaveTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(EnvPrefix + "DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvPrefix + "AUDIT_DIR"); v != "" {
		cfg.AuditDir = v
	}
	if v := os.Getenv(EnvPrefix + "FLUSH_INTERVAL"); v != "" {
		cfg.FlushInterval = v
	}
	if v := os.Getenv(EnvPrefix + "SAVE_TIMEOUT"); v != "" {
		cfg.SaveTimeout = v
	}
	if v := os.Getenv(EnvPrefix + "SPEAKER_REQUIRED"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.SpeakerRequired = b
		}
	}
	if v := os.Getenv(EnvPrefix + "DIARIZE"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Diarize = b
		}
	}
	if v := os.Getenv(EnvPrefix + "LANGUAGE"); v != "" {
		cfg.Language = v
	}
	if v := os.Getenv(EnvPrefix + "MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv(EnvPrefix + "SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && rate > 0 {
			cfg.SampleRate = rate
		}
	}
	if v := os.Getenv(EnvPrefix + "AUDIO_INPUT"); v != "" {
		cfg.AudioInput = v
	}
	if v := os.Getenv(EnvPrefix + "GDRIVE_FOLDER_ID"); v != "" {
		cfg.GDriveFolderID = v
	}
	if v := os.Getenv(EnvPrefix + "GOOGLE_CREDENTIALS_FILE"); v != "" {
		cfg.GoogleCredentialsFile = v
	}
}

func loadSecrets(cfg *Config) {
	cfg.DeepgramAPIKey = os.Getenv(EnvPrefix + "DEEPGRAM_API_KEY")
}

func validate(cfg *Config) []string {
	var warnings []string

	if cfg.DeepgramAPIKey == "" {
		warnings = append(warnings, "Deepgram API key not configured, live ingestion is disabled. Set "+EnvPrefix+"DEEPGRAM_API_KEY.")
	}
	if _, err := time.ParseDuration(cfg.FlushInterval); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid flush_interval %q, using default 30s.", cfg.FlushInterval))
	}
	if _, err := time.ParseDuration(cfg.SaveTimeout); err != nil {
		warnings = append(warnings, fmt.Sprintf("Invalid save_timeout %q, using default 10s.", cfg.SaveTimeout))
	}
	if cfg.SampleRate <= 0 {
		warnings = append(warnings, fmt.Sprintf("Invalid sample_rate %d, using default 16000.", cfg.SampleRate))
		cfg.SampleRate = 16000
	}
	if !cfg.Diarize && cfg.SpeakerRequired {
		warnings = append(warnings, "speaker_required has no effect while diarize is off; unattributed segments will be persisted.")
	}

	return warnings
}

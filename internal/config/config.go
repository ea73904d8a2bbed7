package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for cvn.
type Config struct {
	HostID      string            `toml:"host_id"`
	BaseDir     string            `toml:"base_dir"`
	LogDir      string            `toml:"log_dir"`
	Database    DatabaseConfig    `toml:"database"`
	Courseville CoursevilleConfig `toml:"courseville"`
	Line        LineConfig        `toml:"line"`
	Notify      NotifyConfig      `toml:"notify"`
	Encryption  EncryptionConfig  `toml:"encryption"`
	Vaults      []VaultConfig     `toml:"vaults"`
}

// DatabaseConfig selects the metadata store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// CoursevilleConfig holds the remote-service endpoints and session options.
// The defaults target the production deployment; tests point every base URL
// at a local test server.
type CoursevilleConfig struct {
	BaseURL        string `toml:"base_url"`        // cookie-login host
	AppBaseURL     string `toml:"app_base_url"`    // frontend host, also the assignment detail-link base
	APIBaseURL     string `toml:"api_base_url"`    // data/token API host
	LoginPath      string `toml:"login_path"`      // credential POST endpoint
	AssetPath      string `toml:"asset_path"`      // deployed JS asset carrying the OAuth client id
	TimeoutSeconds int    `toml:"timeout_seconds"` // per-request timeout
}

// LineConfig holds the outbound push-channel settings.
type LineConfig struct {
	Endpoint       string `toml:"endpoint"`     // push API URL
	AccessToken    string `toml:"access_token"` // channel access token
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// NotifyConfig tunes the notification scheduler. Zero values select the
// stock behavior (3-day flag window, 7-day content window, 3 sync workers,
// default urgency thresholds).
type NotifyConfig struct {
	WindowDays      int   `toml:"window_days"`
	OpenWindowDays  int   `toml:"open_window_days"`
	Workers         int   `toml:"workers"`
	CriticalSeconds int64 `toml:"critical_seconds"`
	WarningSeconds  int64 `toml:"warning_seconds"`
}

// EncryptionConfig holds paths to the age key pair used for credential blobs.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// VaultConfig represents configuration for a DB-snapshot vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`   // optional override for S3-compatible stores
	S3AccessKey string `toml:"s3_access_key,omitempty"` // optional static credentials
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// NewConfig creates a new Config with the provided values and default
// paths and endpoints.
func NewConfig(hostID, baseDir string) *Config {
	return &Config{
		HostID:  hostID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Courseville: CoursevilleConfig{
			BaseURL:        "https://www.mycourseville.com",
			AppBaseURL:     "https://alpha.mycourseville.com",
			APIBaseURL:     "https://api.alpha.mycourseville.com",
			LoginPath:      "/api/chulalogin",
			AssetPath:      "/assets/index-BT6DwrJv.js",
			TimeoutSeconds: 30,
		},
		Line: LineConfig{
			Endpoint:       "https://api.line.me/v2/bot/message/push",
			TimeoutSeconds: 15,
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "cvn.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "cvn.key"),
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for drivescope.
type Config struct {
	Station    string           `toml:"station"` // name of the inspection workstation
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Scan       ScanConfig       `toml:"scan"`
	Database   DatabaseConfig   `toml:"database"`
	Archive    ArchiveConfig    `toml:"archive"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// ScanConfig holds metadata-capture settings.
type ScanConfig struct {
	SkipDirs     []string `toml:"skip_dirs,omitempty"` // override for the built-in noise-directory list
	MinHashSize  int64    `toml:"min_hash_size"`       // files below this are cataloged but not fingerprinted
	BatchSize    int      `toml:"batch_size"`          // file rows per insert transaction
	VerifyStrong bool     `toml:"verify_strong"`       // confirm duplicate groups with full-content hashes
	MaxGroups    int      `toml:"max_groups"`          // cap on materialized duplicate groups per scan
	MaxCrossScan int      `toml:"max_cross_scan"`      // cap on cross-scan candidate rows per scan
	HashWorkers  int      `toml:"hash_workers"`        // concurrent fingerprint computations
}

// EncryptionConfig holds paths to the age key pair used for export encryption.
type EncryptionConfig struct {
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// DatabaseConfig represents configuration for the inspection ledger.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// ArchiveConfig represents configuration for the report archive backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ArchiveConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"` // empty: use the default AWS credential chain
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSArchiveRoot string `toml:"fs_archive_root,omitempty"`
}

// Scan defaults. Applied when the config file leaves a field zero.
const (
	DefaultMinHashSize  = 1024
	DefaultBatchSize    = 500
	DefaultMaxGroups    = 1000
	DefaultMaxCrossScan = 1000
	DefaultHashWorkers  = 4
)

// NewConfig creates a new Config with the provided values and default key paths.
func NewConfig(station, baseDir string) *Config {
	return &Config{
		Station: station,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Scan: ScanConfig{
			MinHashSize:  DefaultMinHashSize,
			BatchSize:    DefaultBatchSize,
			MaxGroups:    DefaultMaxGroups,
			MaxCrossScan: DefaultMaxCrossScan,
			HashWorkers:  DefaultHashWorkers,
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Archive: ArchiveConfig{
			Type:          "filesystem",
			FSArchiveRoot: filepath.Join(baseDir, "archive"),
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "drivescope.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "drivescope.key"),
		},
	}
}

// ApplyDefaults fills zero-valued scan fields with their defaults. Loaded
// configs may predate a field being added.
func (c *Config) ApplyDefaults() {
	if c.Scan.MinHashSize == 0 {
		c.Scan.MinHashSize = DefaultMinHashSize
	}
	if c.Scan.BatchSize == 0 {
		c.Scan.BatchSize = DefaultBatchSize
	}
	if c.Scan.MaxGroups == 0 {
		c.Scan.MaxGroups = DefaultMaxGroups
	}
	if c.Scan.MaxCrossScan == 0 {
		c.Scan.MaxCrossScan = DefaultMaxCrossScan
	}
	if c.Scan.HashWorkers == 0 {
		c.Scan.HashWorkers = DefaultHashWorkers
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
	cfg.ApplyDefaults()
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
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
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
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the optional courier configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
	SFTP     SFTPConfig     `toml:"sftp"`
	S3       S3Config       `toml:"s3"`
	Theme    ThemeConfig    `toml:"theme"`
	Volumes  []VolumeConfig `toml:"volume"`
}

// DefaultsConfig holds persistent flag defaults.
type DefaultsConfig struct {
	Verify           *bool     `toml:"verify"`
	BWLimit          *string   `toml:"bwlimit"`
	DeleteDelay      *Duration `toml:"delete_delay"`
	ProgressInterval *Duration `toml:"progress_interval"`
}

// VolumeConfig names a local directory as its own volume. Moves between
// volumes are performed as copy then delete.
type VolumeConfig struct {
	ID   string `toml:"id"`
	Root string `toml:"root"`
}

// SFTPConfig holds connection defaults for sftp:// locations.
type SFTPConfig struct {
	Port     *int    `toml:"port"`
	KeyFile  *string `toml:"key_file"`
	Insecure *bool   `toml:"insecure"`
}

// S3Config holds the endpoint and credentials for s3:// locations.
type S3Config struct {
	Endpoint  *string `toml:"endpoint"`
	AccessKey *string `toml:"access_key"`
	SecretKey *string `toml:"secret_key"`
	Region    *string `toml:"region"`
	Secure    *bool   `toml:"secure"`
}

// ThemeConfig holds optional color overrides.
type ThemeConfig struct {
	Green  *string `toml:"green"`
	Blue   *string `toml:"blue"`
	Yellow *string `toml:"yellow"`
	Red    *string `toml:"red"`
	Muted  *string `toml:"muted"`
}

// Duration is a time.Duration written as a string ("30s", "1m").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	if v < 0 {
		return fmt.Errorf("invalid duration %q: negative", text)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "courier", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads and validates the config file at path. A missing file
// yields a zero Config.
func LoadFile(path string) (Config, error) {
	var cfg Config
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks volume definitions: ids are unique and non-empty and
// roots are absolute.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Volumes))
	for i, v := range c.Volumes {
		switch {
		case v.ID == "":
			return fmt.Errorf("volume %d: missing id", i+1)
		case seen[v.ID]:
			return fmt.Errorf("volume %q: duplicate id", v.ID)
		case !filepath.IsAbs(v.Root):
			return fmt.Errorf("volume %q: root %q is not absolute", v.ID, v.Root)
		}
		seen[v.ID] = true
	}
	return nil
}

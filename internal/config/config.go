package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	DefaultConfigFileName = "config.toml"
	DefaultDBName         = "todogate.db"
	DefaultLogName        = "todogate.log"
	DefaultCredsName      = "credentials.json"
	DefaultEndpoint       = "http://127.0.0.1:8787"
	DefaultListen         = "127.0.0.1:8787"

	appDirName = "todogate"
	envConfig  = "TODOGATE_CONFIG"
)

type Keymap struct {
	Quit    string `toml:"quit"`
	Add     string `toml:"add"`
	Up      string `toml:"up"`
	Down    string `toml:"down"`
	Confirm string `toml:"confirm"`
	Cancel  string `toml:"cancel"`
	Retry   string `toml:"retry"`
	SignOut string `toml:"sign_out"`
	Switch  string `toml:"switch"`
}

type Backend struct {
	Endpoint       string `toml:"endpoint"`
	ReadyTimeout   string `toml:"ready_timeout"`
	RequestTimeout string `toml:"request_timeout"`
}

type Auth struct {
	CredentialsPath string `toml:"credentials_path"`
}

type Server struct {
	Listen     string `toml:"listen"`
	DBPath     string `toml:"db_path"`
	SessionTTL string `toml:"session_ttl"`
}

type Log struct {
	Path  string `toml:"path"`
	Level string `toml:"level"`
}

type Config struct {
	Backend Backend `toml:"backend"`
	Auth    Auth    `toml:"auth"`
	Server  Server  `toml:"server"`
	Log     Log     `toml:"log"`
	Keys    Keymap  `toml:"keys"`
}

// ResolveConfigPath picks the config file location: $TODOGATE_CONFIG first,
// then the user config dir.
func ResolveConfigPath() string {
	if p := strings.TrimSpace(os.Getenv(envConfig)); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return DefaultConfigFileName
	}
	return filepath.Join(dir, appDirName, DefaultConfigFileName)
}

// LoadOrCreate reads the config at path, writing the defaults there first if
// the file does not exist yet. Relative data paths are resolved against the
// config file's directory.
func LoadOrCreate(path string) (Config, error) {
	cfg := defaultConfig()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := write(path, cfg); err != nil {
			return cfg, err
		}
		return cfg.resolvePaths(filepath.Dir(path)), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg.resolvePaths(filepath.Dir(path)), nil
}

// Validate checks the fields that would otherwise fail late, at connect or
// listen time.
func (c Config) Validate() error {
	if !strings.HasPrefix(c.Backend.Endpoint, "http://") && !strings.HasPrefix(c.Backend.Endpoint, "https://") {
		return fmt.Errorf("backend.endpoint: must be an http(s) URL, got %q", c.Backend.Endpoint)
	}
	for field, v := range map[string]string{
		"backend.ready_timeout":   c.Backend.ReadyTimeout,
		"backend.request_timeout": c.Backend.RequestTimeout,
		"server.session_ttl":      c.Server.SessionTTL,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if d <= 0 {
			return fmt.Errorf("%s: must be positive", field)
		}
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

func (b Backend) ReadyTimeoutDuration() time.Duration {
	return parseDurationOr(b.ReadyTimeout, 5*time.Second)
}

func (b Backend) RequestTimeoutDuration() time.Duration {
	return parseDurationOr(b.RequestTimeout, 10*time.Second)
}

func (s Server) SessionTTLDuration() time.Duration {
	return parseDurationOr(s.SessionTTL, 30*24*time.Hour)
}

func (l Log) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(l.Level))); err != nil {
		return slog.LevelInfo, err
	}
	return lvl, nil
}

func parseDurationOr(v string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func write(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func (c *Config) fillDefaults() {
	d := defaultConfig()
	if c.Backend.Endpoint == "" {
		c.Backend.Endpoint = d.Backend.Endpoint
	}
	c.Backend.Endpoint = strings.TrimRight(c.Backend.Endpoint, "/")
	if c.Backend.ReadyTimeout == "" {
		c.Backend.ReadyTimeout = d.Backend.ReadyTimeout
	}
	if c.Backend.RequestTimeout == "" {
		c.Backend.RequestTimeout = d.Backend.RequestTimeout
	}
	if c.Auth.CredentialsPath == "" {
		c.Auth.CredentialsPath = d.Auth.CredentialsPath
	}
	if c.Server.Listen == "" {
		c.Server.Listen = d.Server.Listen
	}
	if c.Server.DBPath == "" {
		c.Server.DBPath = d.Server.DBPath
	}
	if c.Server.SessionTTL == "" {
		c.Server.SessionTTL = d.Server.SessionTTL
	}
	if c.Log.Path == "" {
		c.Log.Path = d.Log.Path
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	k := &c.Keys
	dk := d.Keys
	for _, f := range []struct {
		dst *string
		def string
	}{
		{&k.Quit, dk.Quit}, {&k.Add, dk.Add}, {&k.Up, dk.Up}, {&k.Down, dk.Down},
		{&k.Confirm, dk.Confirm}, {&k.Cancel, dk.Cancel}, {&k.Retry, dk.Retry},
		{&k.SignOut, dk.SignOut}, {&k.Switch, dk.Switch},
	} {
		if *f.dst == "" {
			*f.dst = f.def
		}
	}
}

func (c Config) resolvePaths(base string) Config {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) || strings.HasPrefix(p, "file:") {
			return p
		}
		return filepath.Join(base, p)
	}
	c.Auth.CredentialsPath = abs(c.Auth.CredentialsPath)
	c.Server.DBPath = abs(c.Server.DBPath)
	c.Log.Path = abs(c.Log.Path)
	return c
}

func defaultConfig() Config {
	return Config{
		Backend: Backend{
			Endpoint:       DefaultEndpoint,
			ReadyTimeout:   "5s",
			RequestTimeout: "10s",
		},
		Auth: Auth{
			CredentialsPath: DefaultCredsName,
		},
		Server: Server{
			Listen:     DefaultListen,
			DBPath:     DefaultDBName,
			SessionTTL: "720h",
		},
		Log: Log{
			Path:  DefaultLogName,
			Level: "info",
		},
		Keys: Keymap{
			Quit:    "q",
			Add:     "a",
			Up:      "k",
			Down:    "j",
			Confirm: "enter",
			Cancel:  "esc",
			Retry:   "r",
			SignOut: "o",
			Switch:  "tab",
		},
	}
}

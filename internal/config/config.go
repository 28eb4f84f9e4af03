package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	configName = "config"
	configType = "toml"
	configDir  = ".vsession"
	configFile = "config.toml"

	configFileMode  = 0o600
	configDirMode   = 0o700
	tempFilePattern = ".config-*.toml.tmp"

	keyCacheDir         = "cache.dir"
	keySyncDir          = "sync.dir"
	keyEngineBaseURL    = "engine.base_url"
	keyEngineAccount    = "engine.account"
	keyLogLevel         = "log.level"
	keySnapshotTTL      = "sessions.ttl"
	keyYoungThreshold   = "sessions.young_threshold"
	keyRefreshMaxAge    = "refresh.max_age"
	keyFailureThreshold = "breaker.failure_threshold"
	keySuccessThreshold = "breaker.success_threshold"
	keyResetTimeout     = "breaker.reset_timeout"
	keyTokenCacheSize   = "tokens.cache_size"
	keyTokenCacheTTL    = "tokens.cache_ttl"
)

type Config struct {
	CacheDir       string
	SyncDir        string
	EngineBaseURL  string
	EngineAccount  string
	LogLevel       string
	SnapshotTTL    time.Duration
	YoungThreshold time.Duration
	RefreshMaxAge  time.Duration
	Breaker        BreakerConfig
	TokenCacheSize int
	TokenCacheTTL  time.Duration
}

type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	ResetTimeout     time.Duration
}

// Load reads ~/.vsession/config.toml when present and falls back to the
// defaults otherwise. VS_-prefixed environment variables override both.
func Load(cfg *viper.Viper) (Config, error) {
	if cfg == nil {
		cfg = viper.New()
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return Config{}, fmt.Errorf("resolve home directory: %w", err)
	}
	baseDir := filepath.Join(homeDir, configDir)

	cfg.SetConfigName(configName)
	cfg.SetConfigType(configType)
	cfg.AddConfigPath(baseDir)

	cfg.SetDefault(keyCacheDir, filepath.Join(baseDir, "sessions"))
	cfg.SetDefault(keySyncDir, filepath.Join(baseDir, "sync"))
	cfg.SetDefault(keyEngineBaseURL, "http://127.0.0.1:8000")
	cfg.SetDefault(keyEngineAccount, "default")
	cfg.SetDefault(keyLogLevel, "info")
	cfg.SetDefault(keySnapshotTTL, "24h")
	cfg.SetDefault(keyYoungThreshold, "10m")
	cfg.SetDefault(keyRefreshMaxAge, "30s")
	cfg.SetDefault(keyFailureThreshold, 5)
	cfg.SetDefault(keySuccessThreshold, 2)
	cfg.SetDefault(keyResetTimeout, "30s")
	cfg.SetDefault(keyTokenCacheSize, 32)
	cfg.SetDefault(keyTokenCacheTTL, "5m")

	cfg.SetEnvPrefix("VS")
	cfg.AutomaticEnv()

	err = cfg.ReadInConfig()
	if err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	loaded := Config{
		CacheDir:       cfg.GetString(keyCacheDir),
		SyncDir:        cfg.GetString(keySyncDir),
		EngineBaseURL:  cfg.GetString(keyEngineBaseURL),
		EngineAccount:  cfg.GetString(keyEngineAccount),
		LogLevel:       cfg.GetString(keyLogLevel),
		SnapshotTTL:    cfg.GetDuration(keySnapshotTTL),
		YoungThreshold: cfg.GetDuration(keyYoungThreshold),
		RefreshMaxAge:  cfg.GetDuration(keyRefreshMaxAge),
		Breaker: BreakerConfig{
			FailureThreshold: cfg.GetInt(keyFailureThreshold),
			SuccessThreshold: cfg.GetInt(keySuccessThreshold),
			ResetTimeout:     cfg.GetDuration(keyResetTimeout),
		},
		TokenCacheSize: cfg.GetInt(keyTokenCacheSize),
		TokenCacheTTL:  cfg.GetDuration(keyTokenCacheTTL),
	}
	if loaded.CacheDir == "" {
		return Config{}, errors.New("cache directory is empty")
	}
	if loaded.EngineBaseURL == "" {
		return Config{}, errors.New("engine base URL is empty")
	}

	return loaded, nil
}

// DefaultPath is where `config init` writes and Load looks first.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}

	return filepath.Join(homeDir, configDir, configFile), nil
}

type fileSchema struct {
	Cache    cacheSchema    `toml:"cache"`
	Sync     syncSchema     `toml:"sync"`
	Engine   engineSchema   `toml:"engine"`
	Log      logSchema      `toml:"log"`
	Sessions sessionsSchema `toml:"sessions"`
	Refresh  refreshSchema  `toml:"refresh"`
	Breaker  breakerSchema  `toml:"breaker"`
	Tokens   tokensSchema   `toml:"tokens"`
}

type cacheSchema struct {
	Dir string `toml:"dir"`
}

type syncSchema struct {
	Dir string `toml:"dir"`
}

type engineSchema struct {
	BaseURL string `toml:"base_url"`
	Account string `toml:"account"`
}

type logSchema struct {
	Level string `toml:"level"`
}

type sessionsSchema struct {
	TTL            string `toml:"ttl"`
	YoungThreshold string `toml:"young_threshold"`
}

type refreshSchema struct {
	MaxAge string `toml:"max_age"`
}

type breakerSchema struct {
	FailureThreshold int    `toml:"failure_threshold"`
	SuccessThreshold int    `toml:"success_threshold"`
	ResetTimeout     string `toml:"reset_timeout"`
}

type tokensSchema struct {
	CacheSize int    `toml:"cache_size"`
	CacheTTL  string `toml:"cache_ttl"`
}

// WriteDefault materializes the built-in defaults at path so users have a
// file to edit. An existing file is left untouched.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config file: %w", err)
	}

	baseDir := filepath.Dir(path)
	file := fileSchema{
		Cache:    cacheSchema{Dir: filepath.Join(baseDir, "sessions")},
		Sync:     syncSchema{Dir: filepath.Join(baseDir, "sync")},
		Engine:   engineSchema{BaseURL: "http://127.0.0.1:8000", Account: "default"},
		Log:      logSchema{Level: "info"},
		Sessions: sessionsSchema{TTL: "24h", YoungThreshold: "10m"},
		Refresh:  refreshSchema{MaxAge: "30s"},
		Breaker:  breakerSchema{FailureThreshold: 5, SuccessThreshold: 2, ResetTimeout: "30s"},
		Tokens:   tokensSchema{CacheSize: 32, CacheTTL: "5m"},
	}

	data, err := toml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode config file: %w", err)
	}

	if err := os.MkdirAll(baseDir, configDirMode); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tempFile, err := os.CreateTemp(baseDir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}

	if err := tempFile.Chmod(configFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}

	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}

	if err := os.Rename(tempName, path); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}

	cleanup = false

	return nil
}

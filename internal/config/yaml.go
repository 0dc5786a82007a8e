package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig представляет структуру YAML файла конфигурации.
// Значения из файла перекрывают значения флагов по умолчанию,
// но явно заданные флаги остаются в силе.
type FileConfig struct {
	Port       int    `yaml:"port"`
	Store      string `yaml:"store"`
	SQLitePath string `yaml:"sqlitePath"`
	RemoteURL  string `yaml:"remoteUrl"`
	Offline    bool   `yaml:"offline"`
	LogFormat  string `yaml:"logFormat"`
	LogLevel   string `yaml:"logLevel"`
}

// LoadFile загружает конфигурацию из YAML файла
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if fc.Store != "" {
		switch StoreType(fc.Store) {
		case StoreMemory, StoreSQLite, StoreRemote:
		default:
			return nil, fmt.Errorf("unknown store type %q", fc.Store)
		}
	}

	return &fc, nil
}

// applyFile накладывает значения файла на поля, не заданные флагами явно
func applyFile(cfg *Config, path string) {
	fc, err := LoadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config file ignored: %v\n", err)
		return
	}

	set := setFlags()

	if fc.Port != 0 && !set["port"] {
		cfg.Port = fc.Port
	}
	if fc.Store != "" && !set["store"] {
		cfg.Store = StoreType(fc.Store)
	}
	if fc.SQLitePath != "" && !set["sqlite-path"] {
		cfg.SQLitePath = fc.SQLitePath
	}
	if fc.RemoteURL != "" && !set["remote-url"] {
		cfg.RemoteURL = fc.RemoteURL
	}
	if fc.Offline && !set["offline"] {
		cfg.Offline = true
	}
	if fc.LogFormat != "" && !set["log-format"] {
		cfg.LogFormat = fc.LogFormat
	}
	if fc.LogLevel != "" && !set["log-level"] {
		cfg.LogLevel = fc.LogLevel
	}
}

func setFlags() map[string]bool {
	set := make(map[string]bool)
	flagSetVisit(func(name string) {
		set[name] = true
	})
	return set
}

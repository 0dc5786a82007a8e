package config

import (
	"flag"
)

type StoreType string

const (
	StoreMemory StoreType = "memory"
	StoreSQLite StoreType = "sqlite"
	StoreRemote StoreType = "remote"
)

type Config struct {
	Port       int
	Store      StoreType
	SQLitePath string
	RemoteURL  string
	Offline    bool
	LogFormat  string
	LogLevel   string
}

func Parse() *Config {
	cfg := &Config{}

	flag.IntVar(&cfg.Port, "port", 8000, "Web server port")

	var storeStr string
	flag.StringVar(&storeStr, "store", "memory", "Document store: memory, sqlite or remote")

	flag.StringVar(&cfg.SQLitePath, "sqlite-path", "./user_charts.db", "SQLite database path")
	flag.StringVar(&cfg.RemoteURL, "remote-url", "", "Document gateway URL (http://host:port)")
	flag.BoolVar(&cfg.Offline, "offline", false, "Disable persistence (dummy mode)")
	flag.StringVar(&cfg.LogFormat, "log-format", "text", "Log format: text or json")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn or error")

	var configPath string
	flag.StringVar(&configPath, "config", "", "Optional YAML config file")

	flag.Parse()

	cfg.Store = StoreType(storeStr)

	if configPath != "" {
		applyFile(cfg, configPath)
	}

	if cfg.Store != StoreMemory && cfg.Store != StoreSQLite && cfg.Store != StoreRemote {
		cfg.Store = StoreMemory
	}

	// remote без адреса работать не может, откатываемся в offline
	if cfg.Store == StoreRemote && cfg.RemoteURL == "" {
		cfg.Offline = true
	}

	return cfg
}

// flagSetVisit обходит флаги, заданные в командной строке явно
func flagSetVisit(fn func(name string)) {
	flag.Visit(func(f *flag.Flag) {
		fn(f.Name)
	})
}

package config

import (
	"os"
	"strconv"
)

type Config struct {
	Port         int
	WSAddr       string // empty disables the websocket listener
	DBPath       string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	SignonReplay int // history events replayed after a name claim
}

func Load() *Config {
	cfg := &Config{
		Port:         8081,
		DBPath:       "chatd.db",
		ReadTimeout:  120,
		WriteTimeout: 30,
		SignonReplay: 10,
	}

	if portStr := os.Getenv("CHATD_PORT"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Port = port
		}
	}

	if addr := os.Getenv("CHATD_WS_ADDR"); addr != "" {
		cfg.WSAddr = addr
	}

	if dbPath := os.Getenv("CHATD_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	if timeoutStr := os.Getenv("CHATD_READ_TIMEOUT"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.ReadTimeout = timeout
		}
	}

	if timeoutStr := os.Getenv("CHATD_WRITE_TIMEOUT"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.WriteTimeout = timeout
		}
	}

	if replayStr := os.Getenv("CHATD_SIGNON_REPLAY"); replayStr != "" {
		if replay, err := strconv.Atoi(replayStr); err == nil && replay >= 0 {
			cfg.SignonReplay = replay
		}
	}

	return cfg
}

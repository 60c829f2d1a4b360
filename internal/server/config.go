package server

import (
	"os"
	"strconv"
	"time"
)

// Config is read from the environment by the daemon; every field has a
// workable default for local development.
type Config struct {
	Addr        string
	DataDir     string
	TempDir     string // "" means the OS temp dir
	KeepBackups int
	SweepAge    time.Duration
}

func (c *Config) setDefaults() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8080"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.KeepBackups <= 0 {
		c.KeepBackups = 5
	}
	if c.SweepAge <= 0 {
		c.SweepAge = 24 * time.Hour
	}
}

// ConfigFromEnv builds a Config from PW_* environment variables.
func ConfigFromEnv() Config {
	var c Config
	c.Addr = os.Getenv("PW_ADDR")
	c.DataDir = os.Getenv("PW_DATA_DIR")
	c.TempDir = os.Getenv("PW_TEMP_DIR")
	if v := os.Getenv("PW_KEEP_BACKUPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.KeepBackups = n
		}
	}
	if v := os.Getenv("PW_SWEEP_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.SweepAge = d
		}
	}
	c.setDefaults()
	return c
}

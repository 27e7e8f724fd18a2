package config

import (
	"net"
	"os"
	"strconv"
	"strings"
)

// EnsureDirectories ensures all required directories exist
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Uploads.Dir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Logging.Level == "debug" && c.Logging.Format == "console"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Logging.Level == "info" && c.Logging.Format == "json"
}

// ListenAddress returns the HTTP listen address
func (c *Config) ListenAddress() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.HTTPPort))
}

// MaxBodyBytes returns the request body limit derived from the upload size
func (c *UploadsConfig) MaxBodyBytes() int {
	return c.MaxSizeMB * 1024 * 1024
}

// PublicURL joins the configured base URL and a stored filename
func (c *UploadsConfig) PublicURL(filename string) string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + filename
}

package gateway

import (
	"fmt"
	"strings"
)

type Config struct {
	BaseURL          string
	MaxResponseBytes int64
}

func DefaultConfig() *Config {
	return &Config{
		MaxResponseBytes: 8 << 20,
	}
}

func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("base_url must be an http(s) URL")
	}
	if c.MaxResponseBytes <= 0 {
		return fmt.Errorf("max_response_bytes must be positive")
	}
	return nil
}

func (c *Config) endpoint(op string) string {
	if strings.HasSuffix(c.BaseURL, "/") {
		return c.BaseURL + op
	}
	return c.BaseURL + "/" + op
}

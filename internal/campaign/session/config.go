package session

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	URL                  string
	HandshakeTimeout     time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectDelay    time.Duration
	BackoffMultiplier    float64
	MaxReconnectAttempts int // 0 = unbounded
	ReadLimit            int64
}

func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout:     10 * time.Second,
		ReconnectDelay:       500 * time.Millisecond,
		MaxReconnectDelay:    30 * time.Second,
		BackoffMultiplier:    2,
		MaxReconnectAttempts: 10,
		ReadLimit:            32 << 20,
	}
}

func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("websocket url is required")
	}
	if !strings.HasPrefix(c.URL, "ws://") && !strings.HasPrefix(c.URL, "wss://") {
		return fmt.Errorf("websocket url must use ws or wss")
	}
	if c.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect_delay must be positive")
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		return fmt.Errorf("max_reconnect_delay must be at least reconnect_delay")
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be >= 1")
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max_reconnect_attempts must not be negative")
	}
	return nil
}

// backoff returns the delay before reconnect attempt n (1-based).
func (c *Config) backoff(n int) time.Duration {
	d := float64(c.ReconnectDelay)
	for i := 1; i < n; i++ {
		d *= c.BackoffMultiplier
		if d >= float64(c.MaxReconnectDelay) {
			return c.MaxReconnectDelay
		}
	}
	return time.Duration(d)
}

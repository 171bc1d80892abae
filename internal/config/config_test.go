package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// No config file in the test working directory; defaults apply.
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Port)
	}
	if cfg.DefaultRoom != "dashboard" {
		t.Errorf("default_room = %q, want dashboard", cfg.DefaultRoom)
	}
	if cfg.SendBuffer != 32 {
		t.Errorf("send_buffer = %d, want 32", cfg.SendBuffer)
	}
	if cfg.WriteTimeout != 5*time.Second {
		t.Errorf("write_timeout = %v, want 5s", cfg.WriteTimeout)
	}
	if cfg.PingPeriod != 0 {
		t.Errorf("ping_period = %v, want 0 (disabled)", cfg.PingPeriod)
	}
	if cfg.ConnRateLimit != 20 {
		t.Errorf("conn_rate_limit = %d, want 20", cfg.ConnRateLimit)
	}
	if cfg.ConnRateWindow != time.Minute {
		t.Errorf("conn_rate_window = %v, want 1m", cfg.ConnRateWindow)
	}
	if cfg.Redis.Addr != "" {
		t.Errorf("redis addr = %q, want empty", cfg.Redis.Addr)
	}
}

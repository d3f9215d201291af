package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORE_BACKEND", "")
	cfg := Load()
	if cfg.Store.Backend != BackendMemory || cfg.Store.CASAttempts != 5 {
		t.Fatalf("store = %+v", cfg.Store)
	}
	if cfg.Group.DefaultCapacity != 15 || cfg.Group.DefaultMinimum != 15 || cfg.Group.MaxCapacity != 0 {
		t.Fatalf("group = %+v", cfg.Group)
	}
	if cfg.QRSecret != "s3cret" {
		t.Fatalf("qr secret should fall back to JWT secret, got %q", cfg.QRSecret)
	}
	if cfg.Broker.Enabled || cfg.Tracing.Enabled {
		t.Fatal("broker and tracing must be opt-in")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("QR_SIGNING_SECRET", "qr")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("CAS_MAX_ATTEMPTS", "9")
	t.Setenv("MAX_GROUP_CAPACITY", "40")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	cfg := Load()
	if cfg.Store.Backend != BackendRedis || cfg.Store.CASAttempts != 9 || cfg.Group.MaxCapacity != 40 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.QRSecret != "qr" || cfg.Redis.Addr != "cache:6380" {
		t.Fatalf("qr=%q redis=%q", cfg.QRSecret, cfg.Redis.Addr)
	}
	if cfg.RateLimit.TTL != 10*time.Second {
		t.Fatalf("rate limit ttl not clamped: %s", cfg.RateLimit.TTL)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		Store: StoreConfig{Backend: BackendMemory, CASAttempts: 5},
		Group: GroupConfig{DefaultCapacity: 15, DefaultMinimum: 15},
	}
	if err := base.Validate(); err != nil {
		t.Fatal(err)
	}
	cases := map[string]func(*Config){
		"backend":      func(c *Config) { c.Store.Backend = "etcd" },
		"attempts":     func(c *Config) { c.Store.CASAttempts = 0 },
		"negative max": func(c *Config) { c.Group.MaxCapacity = -1 },
		"max below min": func(c *Config) {
			c.Group.MaxCapacity = 10
		},
		"memory in prod": func(c *Config) { c.Env = "prod" },
	}
	for name, mutate := range cases {
		c := base
		mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestProdNeedsDurableStore(t *testing.T) {
	c := Config{
		Env:   "prod",
		Store: StoreConfig{Backend: BackendRedis, CASAttempts: 5},
		Group: GroupConfig{DefaultCapacity: 15, DefaultMinimum: 15},
	}
	if err := c.Validate(); err != nil || c.Ephemeral() {
		t.Fatalf("redis in prod: %v, ephemeral=%v", err, c.Ephemeral())
	}
	c.Store.Backend = BackendMemory
	if err := c.Validate(); err == nil || !c.Ephemeral() {
		t.Fatalf("memory in prod should be rejected, got %v", err)
	}
}

func TestParseMethods(t *testing.T) {
	m := parseMethods(" get, head ,,")
	if len(m) != 2 || !m["GET"] || !m["HEAD"] {
		t.Fatalf("parseMethods = %v", m)
	}
}

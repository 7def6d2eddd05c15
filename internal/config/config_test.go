package config

import (
	"errors"
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		StorePath:  "/tmp/knowledge.db",
		LocalQuota: DefaultLocalQuota,
		Embedder:   EmbedderDeterministic,
		Backends: []BackendConfig{
			{Name: "gemini-flash", Model: "gemini-2.5-flash", Priority: 1},
		},
		Cloud: CloudConfig{Port: 5432, SSLMode: "disable"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(*Config) {},
		},
		{
			name:    "unknown embedder",
			mutate:  func(c *Config) { c.Embedder = "neural" },
			wantErr: ErrInvalidEmbedder,
		},
		{
			name:    "zero quota",
			mutate:  func(c *Config) { c.LocalQuota = 0 },
			wantErr: ErrInvalidQuota,
		},
		{
			name:    "no backends",
			mutate:  func(c *Config) { c.Backends = nil },
			wantErr: ErrNoBackends,
		},
		{
			name: "unnamed backend",
			mutate: func(c *Config) {
				c.Backends = []BackendConfig{{Model: "m", Priority: 1}}
			},
			wantErr: ErrInvalidBackend,
		},
		{
			name: "backend without model",
			mutate: func(c *Config) {
				c.Backends = []BackendConfig{{Name: "stub", Priority: 1}}
			},
			wantErr: ErrInvalidBackend,
		},
		{
			name: "duplicate backend",
			mutate: func(c *Config) {
				c.Backends = append(c.Backends, c.Backends[0])
			},
			wantErr: ErrInvalidBackend,
		},
		{
			name: "negative rate limit",
			mutate: func(c *Config) {
				c.Backends[0].RequestsPerMinute = -1
			},
			wantErr: ErrInvalidBackend,
		},
		{
			name: "cloud port out of range",
			mutate: func(c *Config) {
				c.Cloud.Host = "db.internal"
				c.Cloud.Port = 70000
			},
			wantErr: ErrInvalidPostgresPort,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNil(t *testing.T) {
	var c *Config
	if err := c.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Fatalf("err = %v, want ErrConfigNil", err)
	}
}

func TestStringMasksPassword(t *testing.T) {
	cfg := validConfig()
	cfg.Cloud.Password = "super-secret-password"

	out := cfg.String()
	if strings.Contains(out, "super-secret-password") {
		t.Error("password leaked in String()")
	}
	if !strings.Contains(out, maskedValue) {
		t.Error("password not replaced with mask")
	}
}

func TestCloudDSN(t *testing.T) {
	c := CloudConfig{
		Host: "db.internal", Port: 5432,
		User: "lumen", Password: "pw",
		DBName: "lumen", SSLMode: "require",
	}
	want := "postgres://lumen:pw@db.internal:5432/lumen?sslmode=require"
	if got := c.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
	if !c.Enabled() {
		t.Error("Enabled = false with a host set")
	}
	if (CloudConfig{}).Enabled() {
		t.Error("Enabled = true without a host")
	}
}

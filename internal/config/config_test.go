package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Invitation.TTLDays != 7 {
		t.Errorf("Invitation.TTLDays = %d, expected 7", cfg.Invitation.TTLDays)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Database.Driver = %q, expected %q", cfg.Database.Driver, "sqlite")
	}
	if cfg.Cache.Driver != "memory" {
		t.Errorf("Cache.Driver = %q, expected %q", cfg.Cache.Driver, "memory")
	}
	if cfg.Retention.CleanupCron != "@daily" {
		t.Errorf("Retention.CleanupCron = %q, expected %q", cfg.Retention.CleanupCron, "@daily")
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != "8080" {
		t.Errorf("Server.Port = %q, expected %q", cfg.Server.Port, "8080")
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte("server:\n  port: \"9090\"\ninvitation:\n  ttl_days: 3\n")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %q, expected %q", cfg.Server.Port, "9090")
	}
	if cfg.Invitation.TTLDays != 3 {
		t.Errorf("Invitation.TTLDays = %d, expected 3", cfg.Invitation.TTLDays)
	}
	if cfg.Invitation.CodeLength != 32 {
		t.Errorf("Invitation.CodeLength = %d, expected default 32", cfg.Invitation.CodeLength)
	}
}

func TestApplyFloors(t *testing.T) {
	cfg := &Config{}
	cfg.applyFloors()

	if cfg.Invitation.TTLDays != 7 {
		t.Errorf("TTLDays = %d, expected 7", cfg.Invitation.TTLDays)
	}
	if cfg.Invitation.CodeLength != 21 {
		t.Errorf("CodeLength = %d, expected 21", cfg.Invitation.CodeLength)
	}
	if cfg.JWT.ExpireHour != 24 {
		t.Errorf("ExpireHour = %d, expected 24", cfg.JWT.ExpireHour)
	}
}

func TestParseRedisURL(t *testing.T) {
	tests := []struct {
		name     string
		url      string
		addr     string
		password string
		db       int
	}{
		{"host only", "redis://localhost:6379", "localhost:6379", "", 0},
		{"with password", "redis://:secret@cache:6379", "cache:6379", "secret", 0},
		{"with user and db", "redis://user:pw@cache:6380/2", "cache:6380", "pw", 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.parseRedisURL(tt.url)
			if cfg.Redis.Addr != tt.addr {
				t.Errorf("Addr = %q, expected %q", cfg.Redis.Addr, tt.addr)
			}
			if cfg.Redis.Password != tt.password {
				t.Errorf("Password = %q, expected %q", cfg.Redis.Password, tt.password)
			}
			if cfg.Redis.DB != tt.db {
				t.Errorf("DB = %d, expected %d", cfg.Redis.DB, tt.db)
			}
		})
	}
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("SMTP_PORT", "2525")
	t.Setenv("CACHE_DRIVER", "redis")
	t.Setenv("ADMIN_EMAIL", "root@example.com")

	cfg := DefaultConfig()
	cfg.overrideFromEnv()

	if !cfg.Email.Enabled {
		t.Error("SMTP_HOST should enable email delivery")
	}
	if cfg.Email.Port != 2525 {
		t.Errorf("Email.Port = %d, expected 2525", cfg.Email.Port)
	}
	if cfg.Cache.Driver != "redis" {
		t.Errorf("Cache.Driver = %q, expected %q", cfg.Cache.Driver, "redis")
	}
	if cfg.Admin.Email != "root@example.com" {
		t.Errorf("Admin.Email = %q, expected %q", cfg.Admin.Email, "root@example.com")
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Invitation.TTLDays = 14

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Invitation.TTLDays != 14 {
		t.Errorf("TTLDays = %d, expected 14", loaded.Invitation.TTLDays)
	}
}

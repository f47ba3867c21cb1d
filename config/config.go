// Package config resolves runtime configuration from three layers: built-in
// defaults, the YAML policy file, and environment variables. Credentials only
// ever come from the environment, usually via a .env file next to the
// binary.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"f0oster/adsweep/lifecycle"
)

type Config struct {
	LDAP    LDAPConfig
	Archive ArchiveConfig
	Mail    MailConfig
	Sweep   SweepConfig
	Daemon  DaemonConfig
}

type LDAPConfig struct {
	URL      string
	BaseDN   string
	Username string
	Password string
	PageSize uint32
}

type ArchiveConfig struct {
	DSN           string
	RetentionDays int
}

type MailConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
	Subject    string
}

// Enabled reports whether a report mail should be sent at all.
func (m MailConfig) Enabled() bool {
	return len(m.Recipients) > 0
}

// KindPolicy is the per-kind sweep policy: staleness thresholds plus the
// containers to sweep. Without search bases the whole domain is swept.
type KindPolicy struct {
	DisableDays int      `yaml:"disable_days"`
	RemoveDays  int      `yaml:"remove_days"`
	SearchBases []string `yaml:"search_bases"`
}

func (k KindPolicy) Policy() lifecycle.Policy {
	return lifecycle.Policy{DisableDays: k.DisableDays, RemoveDays: k.RemoveDays}
}

func defaultKindPolicy(p lifecycle.Policy) KindPolicy {
	return KindPolicy{DisableDays: p.DisableDays, RemoveDays: p.RemoveDays}
}

type SweepConfig struct {
	Computers          KindPolicy
	Users              KindPolicy
	DeleteAfterArchive bool
	Parallelism        int
}

type DaemonConfig struct {
	Interval   time.Duration
	StatusAddr string
}

// policyFile mirrors the YAML schema of the policy file. It stays separate
// from Config so credentials cannot leak into a checked-in file.
type policyFile struct {
	Sweep struct {
		Computers          KindPolicy `yaml:"computers"`
		Users              KindPolicy `yaml:"users"`
		DeleteAfterArchive *bool      `yaml:"delete_after_archive"`
		Parallelism        int        `yaml:"parallelism"`
	} `yaml:"sweep"`
	Archive struct {
		RetentionDays int `yaml:"retention_days"`
	} `yaml:"archive"`
	Daemon struct {
		Interval   string `yaml:"interval"`
		StatusAddr string `yaml:"status_addr"`
	} `yaml:"daemon"`
}

// Load resolves configuration in priority order: defaults, policy file, then
// environment. Both files are optional; a missing .env simply means the
// process environment already carries the credentials.
func Load(envPath, policyPath string) (*Config, error) {
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	cfg := &Config{
		LDAP: LDAPConfig{PageSize: 500},
		Sweep: SweepConfig{
			Computers:   defaultKindPolicy(lifecycle.DefaultComputerPolicy()),
			Users:       defaultKindPolicy(lifecycle.DefaultUserPolicy()),
			Parallelism: 4,
		},
		Daemon: DaemonConfig{
			Interval:   24 * time.Hour,
			StatusAddr: ":8730",
		},
	}

	if raw, err := os.ReadFile(policyPath); err == nil {
		var file policyFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parse %s: %w", policyPath, err)
		}
		applyPolicyFile(cfg, file)
	}

	cfg.LDAP.URL = envOrDefault("LDAP_URL", cfg.LDAP.URL)
	cfg.LDAP.BaseDN = envOrDefault("LDAP_BASEDN", cfg.LDAP.BaseDN)
	cfg.LDAP.Username = envOrDefault("LDAP_USERNAME", cfg.LDAP.Username)
	cfg.LDAP.Password = envOrDefault("LDAP_PASSWORD", cfg.LDAP.Password)
	cfg.LDAP.PageSize = uint32(envInt("LDAP_PAGESIZE", int(cfg.LDAP.PageSize)))

	cfg.Archive.DSN = envOrDefault("ARCHIVE_DSN", cfg.Archive.DSN)

	cfg.Mail.Host = envOrDefault("SMTP_HOST", cfg.Mail.Host)
	cfg.Mail.Port = envInt("SMTP_PORT", 587)
	cfg.Mail.Username = envOrDefault("SMTP_USERNAME", cfg.Mail.Username)
	cfg.Mail.Password = envOrDefault("SMTP_PASSWORD", cfg.Mail.Password)
	cfg.Mail.From = envOrDefault("MAIL_FROM", cfg.Mail.From)
	cfg.Mail.Recipients = envCSV("MAIL_RECIPIENTS", cfg.Mail.Recipients)
	cfg.Mail.Subject = envOrDefault("MAIL_SUBJECT", cfg.Mail.Subject)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyPolicyFile(cfg *Config, file policyFile) {
	mergeKindPolicy(&cfg.Sweep.Computers, file.Sweep.Computers)
	mergeKindPolicy(&cfg.Sweep.Users, file.Sweep.Users)
	if file.Sweep.DeleteAfterArchive != nil {
		cfg.Sweep.DeleteAfterArchive = *file.Sweep.DeleteAfterArchive
	}
	if file.Sweep.Parallelism > 0 {
		cfg.Sweep.Parallelism = file.Sweep.Parallelism
	}
	if file.Archive.RetentionDays > 0 {
		cfg.Archive.RetentionDays = file.Archive.RetentionDays
	}
	if file.Daemon.Interval != "" {
		if interval, err := time.ParseDuration(file.Daemon.Interval); err == nil {
			cfg.Daemon.Interval = interval
		}
	}
	if file.Daemon.StatusAddr != "" {
		cfg.Daemon.StatusAddr = file.Daemon.StatusAddr
	}
}

func mergeKindPolicy(dst *KindPolicy, src KindPolicy) {
	if src.DisableDays > 0 {
		dst.DisableDays = src.DisableDays
	}
	if src.RemoveDays > 0 {
		dst.RemoveDays = src.RemoveDays
	}
	if len(src.SearchBases) > 0 {
		dst.SearchBases = src.SearchBases
	}
}

// Validate rejects configurations that cannot possibly run. It runs before
// any connection is opened so misconfigured deployments fail immediately.
func (c *Config) Validate() error {
	if c.LDAP.URL == "" {
		return fmt.Errorf("LDAP_URL is required")
	}
	if c.LDAP.BaseDN == "" {
		return fmt.Errorf("LDAP_BASEDN is required")
	}
	if c.LDAP.Username == "" || c.LDAP.Password == "" {
		return fmt.Errorf("LDAP_USERNAME and LDAP_PASSWORD are required")
	}
	if c.LDAP.PageSize == 0 {
		return fmt.Errorf("LDAP_PAGESIZE must be positive")
	}

	if err := c.Sweep.Computers.Policy().Validate(); err != nil {
		return fmt.Errorf("computer policy: %w", err)
	}
	if err := c.Sweep.Users.Policy().Validate(); err != nil {
		return fmt.Errorf("user policy: %w", err)
	}
	if c.Sweep.Parallelism < 1 {
		return fmt.Errorf("sweep parallelism must be at least 1")
	}

	if c.Mail.Enabled() {
		if c.Mail.Host == "" {
			return fmt.Errorf("SMTP_HOST is required when recipients are configured")
		}
		if c.Mail.From == "" {
			return fmt.Errorf("MAIL_FROM is required when recipients are configured")
		}
	}

	if c.Daemon.Interval <= 0 {
		return fmt.Errorf("daemon interval must be positive")
	}

	return nil
}

// envOrDefault returns an env var when present, otherwise the provided fallback.
func envOrDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

// envInt parses integer env vars with safe fallback on empty/invalid values.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

// envCSV parses comma-separated env vars and removes empty segments.
func envCSV(name string, fallback []string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	parts := make([]string, 0)
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		parts = append(parts, trimmed)
	}
	if len(parts) == 0 {
		return fallback
	}
	return parts
}

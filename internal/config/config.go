package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"
	_ "time/tzdata"

	"ClassFund/internal/fund"
	"ClassFund/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id" validate:"required_with=BotToken"`
	} `yaml:"telegram"`
	Fund struct {
		AnchorDate         string `yaml:"anchor_date" validate:"omitempty,datetime=2006-01-02"`
		ContributionAmount string `yaml:"contribution_amount" validate:"omitempty,numeric"`
		AllocationPolicy   string `yaml:"allocation_policy" validate:"omitempty,oneof=intended_period payment_time"`
	} `yaml:"fund"`
	Schedule struct {
		ArchiveCron   string        `yaml:"archive_cron" validate:"required"`
		Timezone      string        `yaml:"timezone" validate:"required"`
		RunTimeout    time.Duration `yaml:"run_timeout" validate:"gt=0"`
		MemberTimeout time.Duration `yaml:"member_timeout" validate:"gt=0"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string        `yaml:"sqlite_path" validate:"required"`
		OpTimeout  time.Duration `yaml:"op_timeout" validate:"gt=0"`
	} `yaml:"database"`
	Redis struct {
		Address  string        `yaml:"address" validate:"omitempty,hostname_port"`
		Password string        `yaml:"password"`
		LockTTL  time.Duration `yaml:"lock_ttl"`
	} `yaml:"redis"`
	Log struct {
		Level  string `yaml:"level" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" validate:"oneof=text json"`
	} `yaml:"log"`
	Members []MemberSeed `yaml:"members" validate:"dive"`
	Proxy   string       `yaml:"proxy"`
}

// MemberSeed is a member upserted into the directory at startup.
type MemberSeed struct {
	ID     string `yaml:"id" validate:"required"`
	Name   string `yaml:"name" validate:"required"`
	Active *bool  `yaml:"active"`
}

// Member converts the seed to a directory record. Active defaults to true.
func (m MemberSeed) Member() model.Member {
	active := m.Active == nil || *m.Active
	return model.Member{ID: m.ID, Name: m.Name, Active: active}
}

// Load reads config from a YAML file, then applies .env and environment
// variable overrides, then defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	overrides := []struct {
		env string
		dst *string
	}{
		{"TELEGRAM_BOT_TOKEN", &cfg.Telegram.BotToken},
		{"TELEGRAM_CHAT_ID", &cfg.Telegram.ChatID},
		{"FUND_ANCHOR_DATE", &cfg.Fund.AnchorDate},
		{"FUND_CONTRIBUTION_AMOUNT", &cfg.Fund.ContributionAmount},
		{"FUND_ALLOCATION_POLICY", &cfg.Fund.AllocationPolicy},
		{"ARCHIVE_CRON", &cfg.Schedule.ArchiveCron},
		{"TIMEZONE", &cfg.Schedule.Timezone},
		{"SQLITE_PATH", &cfg.Database.SQLitePath},
		{"REDIS_ADDRESS", &cfg.Redis.Address},
		{"REDIS_PASSWORD", &cfg.Redis.Password},
		{"LOG_LEVEL", &cfg.Log.Level},
		{"HTTPS_PROXY", &cfg.Proxy},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}

	// Defaults
	if cfg.Fund.AllocationPolicy == "" {
		cfg.Fund.AllocationPolicy = string(fund.PolicyIntendedPeriod)
	}
	if cfg.Schedule.ArchiveCron == "" {
		cfg.Schedule.ArchiveCron = "0 5 0 1 * *"
	}
	if cfg.Schedule.Timezone == "" {
		cfg.Schedule.Timezone = "UTC"
	}
	if cfg.Schedule.RunTimeout == 0 {
		cfg.Schedule.RunTimeout = 10 * time.Minute
	}
	if cfg.Schedule.MemberTimeout == 0 {
		cfg.Schedule.MemberTimeout = 10 * time.Second
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/classfund.db"
	}
	if cfg.Database.OpTimeout == 0 {
		cfg.Database.OpTimeout = 5 * time.Second
	}
	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = cfg.Schedule.RunTimeout
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	return cfg, nil
}

// Validate checks field formats and cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if (c.Fund.AnchorDate == "") != (c.Fund.ContributionAmount == "") {
		return fmt.Errorf("fund.anchor_date and fund.contribution_amount must be set together")
	}
	if _, err := c.Seed(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(c.Schedule.ArchiveCron); err != nil {
		return fmt.Errorf("schedule.archive_cron: %w", err)
	}
	return nil
}

// Seed returns the period config from the file, or nil when none is given.
func (c *Config) Seed() (*model.PeriodConfig, error) {
	if c.Fund.AnchorDate == "" || c.Fund.ContributionAmount == "" {
		return nil, nil
	}
	anchor, err := time.Parse(time.DateOnly, c.Fund.AnchorDate)
	if err != nil {
		return nil, fmt.Errorf("fund.anchor_date: %w", err)
	}
	amount, err := decimal.NewFromString(c.Fund.ContributionAmount)
	if err != nil {
		return nil, fmt.Errorf("fund.contribution_amount: %w", err)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("fund.contribution_amount must be positive")
	}
	return &model.PeriodConfig{AnchorDate: anchor, ContributionAmount: amount}, nil
}

// Location loads the site time zone used for month boundaries.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone: %w", err)
	}
	return loc, nil
}

// Policy returns the configured allocation policy.
func (c *Config) Policy() (fund.AllocationPolicy, error) {
	return fund.ParseAllocationPolicy(c.Fund.AllocationPolicy)
}

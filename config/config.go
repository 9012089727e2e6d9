// Package config loads the pressroom configuration from an ini file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/wansing/pressroom/bus"
	"github.com/wansing/pressroom/filters"
	"github.com/wansing/pressroom/notify"
	"gopkg.in/ini.v1"
)

const (
	SelectorLeastLoaded = "least-loaded"
	SelectorRoundRobin  = "round-robin"
)

type Server struct {
	Listen          string
	Base            string // path prefix without trailing slash, empty for none
	SessionLifetime time.Duration
}

type Database struct {
	URL string // see github.com/xo/dburl, or "mem:"
}

type Bus struct {
	bus.Config
	Redis     string        // address of the asynq redis; empty means the in-process bus
	Retention time.Duration // how long asynq keeps completed event ids to reject duplicates
	Channel   string        // redis pub/sub channel which relays pushes to all nodes
}

type Review struct {
	Selector string
}

type Filters struct {
	filters.Settings
	Enabled []string
}

type Config struct {
	Server   Server
	Database Database
	Bus      Bus
	Review   Review
	Filters  Filters
	Mail     notify.MailConfig // disabled if Host is empty
}

var DefaultFilters = []string{"title-not-empty", "title-length", "body-length", "banned-terms", "staff-auto-publish", "draft", "require-review"}

func Default() Config {
	return Config{
		Server: Server{
			Listen:          "127.0.0.1:8080",
			SessionLifetime: 24 * time.Hour,
		},
		Database: Database{
			URL: "sqlite3:pressroom.sqlite3?_busy_timeout=10000&_journal=WAL&_sync=NORMAL",
		},
		Bus: Bus{
			Config: bus.Config{
				Workers:        4,
				QueueSize:      256,
				HandlerTimeout: 10 * time.Second,
				MaxAttempts:    5,
				RetryBackoff:   200 * time.Millisecond,
				DedupeWindow:   4096,
			},
			Retention: 24 * time.Hour,
			Channel:   "pressroom:push",
		},
		Review: Review{
			Selector: SelectorLeastLoaded,
		},
		Filters: Filters{
			Settings: filters.DefaultSettings(),
			Enabled:  DefaultFilters,
		},
		Mail: notify.MailConfig{
			Port: 25,
		},
	}
}

// Load reads the ini file at path on top of the defaults and applies the environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {

	var cfg = Default()

	if path != "" {
		file, err := ini.Load(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("loading config: %w", err)
		default:
			if err := cfg.apply(file); err != nil {
				return cfg, fmt.Errorf("%s: %w", path, err)
			}
		}
	}

	cfg.applyEnv(os.Getenv)
	return cfg, cfg.Validate()
}

// Parse reads the configuration from ini data, without environment overrides.
func Parse(data []byte) (Config, error) {
	var cfg = Default()
	file, err := ini.Load(data)
	if err != nil {
		return cfg, err
	}
	if err := cfg.apply(file); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (cfg *Config) apply(file *ini.File) error {

	var server = file.Section("server")
	cfg.Server.Listen = server.Key("listen").MustString(cfg.Server.Listen)
	cfg.Server.Base = server.Key("base").MustString(cfg.Server.Base)
	cfg.Server.SessionLifetime = server.Key("session_lifetime").MustDuration(cfg.Server.SessionLifetime)

	cfg.Database.URL = file.Section("database").Key("url").MustString(cfg.Database.URL)

	var b = file.Section("bus")
	cfg.Bus.Workers = b.Key("workers").MustInt(cfg.Bus.Workers)
	cfg.Bus.QueueSize = b.Key("queue_size").MustInt(cfg.Bus.QueueSize)
	cfg.Bus.HandlerTimeout = b.Key("handler_timeout").MustDuration(cfg.Bus.HandlerTimeout)
	cfg.Bus.MaxAttempts = b.Key("max_attempts").MustInt(cfg.Bus.MaxAttempts)
	cfg.Bus.RetryBackoff = b.Key("retry_backoff").MustDuration(cfg.Bus.RetryBackoff)
	cfg.Bus.DedupeWindow = b.Key("dedupe_window").MustInt(cfg.Bus.DedupeWindow)
	cfg.Bus.Redis = b.Key("redis").MustString(cfg.Bus.Redis)
	cfg.Bus.Retention = b.Key("retention").MustDuration(cfg.Bus.Retention)
	cfg.Bus.Channel = b.Key("channel").MustString(cfg.Bus.Channel)

	var review = file.Section("review")
	cfg.Review.Selector = review.Key("selector").MustString(cfg.Review.Selector)
	cfg.Filters.AutoPublishStaff = review.Key("auto_publish_staff").MustBool(cfg.Filters.AutoPublishStaff)

	var f = file.Section("filters")
	if f.HasKey("enabled") {
		cfg.Filters.Enabled = f.Key("enabled").Strings(",")
	}
	cfg.Filters.TitleMax = f.Key("title_max").MustInt(cfg.Filters.TitleMax)
	cfg.Filters.BodyMin = f.Key("body_min").MustInt(cfg.Filters.BodyMin)
	cfg.Filters.BodyMax = f.Key("body_max").MustInt(cfg.Filters.BodyMax)
	if f.HasKey("banned") {
		cfg.Filters.Banned = f.Key("banned").Strings(",")
	}

	var mail = file.Section("mail")
	cfg.Mail.Host = mail.Key("host").MustString(cfg.Mail.Host)
	cfg.Mail.Port = mail.Key("port").MustInt(cfg.Mail.Port)
	cfg.Mail.From = mail.Key("from").MustString(cfg.Mail.From)
	cfg.Mail.User = mail.Key("user").MustString(cfg.Mail.User)
	cfg.Mail.Password = mail.Key("password").MustString(cfg.Mail.Password)

	return nil
}

func (cfg *Config) applyEnv(getenv func(string) string) {
	if v := getenv("PRESSROOM_DB"); v != "" {
		cfg.Database.URL = v
	}
	if v := getenv("PRESSROOM_LISTEN"); v != "" {
		cfg.Server.Listen = v
	}
	if v := getenv("PRESSROOM_REDIS"); v != "" {
		cfg.Bus.Redis = v
	}
}

// Validate normalizes the base path and checks the selector and the filter codes.
func (cfg *Config) Validate() error {

	cfg.Server.Base = strings.Trim(cfg.Server.Base, "/")
	if cfg.Server.Base != "" {
		cfg.Server.Base = "/" + cfg.Server.Base
	}

	switch cfg.Review.Selector {
	case SelectorLeastLoaded, SelectorRoundRobin:
	default:
		return fmt.Errorf("unknown reviewer selector %q", cfg.Review.Selector)
	}

	for _, code := range cfg.Filters.Enabled {
		if _, ok := filters.DefaultRegistry.Get(code); !ok {
			return fmt.Errorf("unknown publish filter %q", code)
		}
	}

	if cfg.Bus.Redis != "" && cfg.Bus.Retention <= 0 {
		return errors.New("bus: retention must be positive")
	}

	if cfg.Mail.Host != "" && cfg.Mail.From == "" {
		return errors.New("mail: from address is required")
	}
	return nil
}

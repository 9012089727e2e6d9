package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("PRESSROOM_DB", "")
	t.Setenv("PRESSROOM_LISTEN", "")
	t.Setenv("PRESSROOM_REDIS", "")
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.ini"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Listen != "127.0.0.1:8080" || cfg.Review.Selector != SelectorLeastLoaded || cfg.Bus.Retention != 24*time.Hour {
		t.Fatalf("got %+v", cfg)
	}
	if len(cfg.Filters.Enabled) != len(DefaultFilters) {
		t.Fatalf("got filters %v", cfg.Filters.Enabled)
	}
}

func TestParse(t *testing.T) {

	cfg, err := Parse([]byte(`
[server]
listen = :9000
base = /blog/

[bus]
workers = 8
handler_timeout = 3s
redis = localhost:6379
retention = 48h

[review]
selector = round-robin
auto_publish_staff = true

[filters]
enabled = title-not-empty, require-review
body_min = 1
banned = casino, viagra

[mail]
host = smtp.example.com
from = pressroom@example.com
`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Listen != ":9000" || cfg.Server.Base != "/blog" {
		t.Fatalf("got server %+v", cfg.Server)
	}
	if cfg.Bus.Workers != 8 || cfg.Bus.HandlerTimeout != 3*time.Second || cfg.Bus.Redis != "localhost:6379" {
		t.Fatalf("got bus %+v", cfg.Bus)
	}
	if cfg.Bus.Retention != 48*time.Hour {
		t.Fatalf("got retention %s", cfg.Bus.Retention)
	}
	if cfg.Bus.QueueSize != 256 || cfg.Bus.Channel != "pressroom:push" {
		t.Fatalf("unset keys should keep defaults, got %+v", cfg.Bus)
	}
	if cfg.Review.Selector != SelectorRoundRobin || !cfg.Filters.AutoPublishStaff {
		t.Fatalf("got review %+v", cfg.Review)
	}
	if len(cfg.Filters.Enabled) != 2 || cfg.Filters.Enabled[1] != "require-review" {
		t.Fatalf("got enabled %q", cfg.Filters.Enabled)
	}
	if len(cfg.Filters.Banned) != 2 || cfg.Filters.Banned[1] != "viagra" || cfg.Filters.BodyMin != 1 {
		t.Fatalf("got filters %+v", cfg.Filters)
	}
	if cfg.Mail.Host != "smtp.example.com" || cfg.Mail.Port != 25 {
		t.Fatalf("got mail %+v", cfg.Mail)
	}
}

func TestParseInvalid(t *testing.T) {
	var tests = []string{
		"[review]\nselector = random",
		"[filters]\nenabled = no-such-filter",
		"[mail]\nhost = smtp.example.com",
		"[bus]\nredis = localhost:6379\nretention = 0s",
	}
	for _, test := range tests {
		if _, err := Parse([]byte(test)); err == nil {
			t.Fatalf("%q: expected error", test)
		}
	}
}

func TestEnvOverrides(t *testing.T) {

	var path = filepath.Join(t.TempDir(), "pressroom.ini")
	if err := os.WriteFile(path, []byte("[database]\nurl = sqlite3:file.db\n"), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PRESSROOM_DB", "mem:")
	t.Setenv("PRESSROOM_LISTEN", "0.0.0.0:80")
	t.Setenv("PRESSROOM_REDIS", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Database.URL != "mem:" || cfg.Server.Listen != "0.0.0.0:80" || cfg.Bus.Redis != "" {
		t.Fatalf("got %+v", cfg)
	}
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Wyydra/duet/internal/core/domain"
	"github.com/spf13/pflag"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil, envMap(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr() != ":8080" {
		t.Fatalf("Addr=%q, want :8080", cfg.Addr())
	}
	if cfg.TopologyValue() != domain.TopologyRoom {
		t.Fatalf("Topology=%q", cfg.Topology)
	}
	if cfg.OfferTTL != 0 || cfg.StrictPayloads || cfg.Nack {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "duet.yaml")
	yml := "port: \"7000\"\ntopology: broadcast\noffer-ttl: 2m\nallowed-origins:\n  - https://a.example\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	env := envMap(map[string]string{
		"DUET_CONFIG":    path,
		"PORT":           "7100",
		"DUET_LOG_LEVEL": "debug",
	})
	cfg, err := Load([]string{"--log-level", "warn", "--nack"}, env)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "7100" {
		t.Fatalf("Port=%q, env should override file", cfg.Port)
	}
	if cfg.TopologyValue() != domain.TopologyBroadcast {
		t.Fatalf("Topology=%q, want file value", cfg.Topology)
	}
	if cfg.OfferTTL != 2*time.Minute {
		t.Fatalf("OfferTTL=%s, want 2m", cfg.OfferTTL)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("LogLevel=%q, flag should override env", cfg.LogLevel)
	}
	if !cfg.Nack {
		t.Fatalf("Nack flag ignored")
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://a.example" {
		t.Fatalf("AllowedOrigins=%v", cfg.AllowedOrigins)
	}
}

func TestLoad_FileUsesFlagSpelling(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	yml := "log-format: json\nstrict-payloads: true\nparse-sdp: true\nmax-message-bytes: 1024\nping-interval: 20s\nshutdown-timeout: 1s\n"
	if err := os.WriteFile(good, []byte(yml), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err := Load([]string{"--config", good}, envMap(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogFormat != LogFormatJSON || !cfg.StrictPayloads || !cfg.ParseSDP ||
		cfg.MaxMessageBytes != 1024 || cfg.PingInterval != 20*time.Second || cfg.ShutdownTimeout != time.Second {
		t.Fatalf("file settings not applied: %+v", cfg)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("offer_ttl: 2m\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load([]string{"--config", bad}, envMap(nil)); err == nil {
		t.Fatalf("underscore key accepted, want error")
	}

	empty := filepath.Join(dir, "empty.yaml")
	if err := os.WriteFile(empty, nil, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := Load([]string{"--config", empty}, envMap(nil)); err != nil {
		t.Fatalf("empty file: %v", err)
	}
}

func TestLoad_ListsAndDurations(t *testing.T) {
	cfg, err := Load([]string{
		"--allowed-origins", " https://a.example, localhost:5173 ,",
		"--ping-interval", "10s",
		"--strict-payloads",
		"--port", "127.0.0.1:9000",
	}, envMap(nil))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "localhost:5173" {
		t.Fatalf("AllowedOrigins=%v", cfg.AllowedOrigins)
	}
	if cfg.PingInterval != 10*time.Second || !cfg.StrictPayloads {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Addr() != "127.0.0.1:9000" {
		t.Fatalf("Addr=%q", cfg.Addr())
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"topology", []string{"--topology", "mesh"}, nil},
		{"log format", []string{"--log-format", "xml"}, nil},
		{"log level", nil, map[string]string{"DUET_LOG_LEVEL": "loud"}},
		{"negative ttl", []string{"--offer-ttl=-1s"}, nil},
		{"bad duration", nil, map[string]string{"DUET_OFFER_TTL": "soon"}},
		{"bad bool", nil, map[string]string{"DUET_NACK": "maybe"}},
		{"zero message size", []string{"--max-message-bytes", "0"}, nil},
		{"missing file", []string{"--config", "/nonexistent/duet.yaml"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.args, envMap(tt.env)); err == nil {
				t.Fatalf("Load accepted invalid config")
			}
		})
	}
}

func TestLoad_Help(t *testing.T) {
	_, err := Load([]string{"--help"}, envMap(nil))
	if !errors.Is(err, pflag.ErrHelp) {
		t.Fatalf("err=%v, want pflag.ErrHelp", err)
	}
}

package main

import (
	"testing"

	"github.com/r3e-labs/engines-controlplane/internal/platform/config"
)

func TestResolveDSNPrecedence(t *testing.T) {
	cases := []struct {
		name string
		cfg  func() *config.Config
		want string
	}{
		{
			name: "dsn set directly",
			cfg: func() *config.Config {
				cfg := config.New()
				cfg.Database.DSN = "postgres://cfg"
				return cfg
			},
			want: "postgres://cfg",
		},
		{
			name: "legacy host fallback",
			cfg: func() *config.Config {
				cfg := config.New()
				cfg.Database.DSN = ""
				cfg.Database.Host = "localhost"
				cfg.Database.Port = 5432
				cfg.Database.User = "postgres"
				cfg.Database.Password = "postgres"
				cfg.Database.Name = "engines_controlplane"
				cfg.Database.SSLMode = "disable"
				return cfg
			},
			want: "host=localhost port=5432 user=postgres password=postgres dbname=engines_controlplane sslmode=disable",
		},
		{
			name: "empty when nothing provided",
			cfg: func() *config.Config {
				return config.New()
			},
			want: "",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := resolveDSN(tc.cfg())
			if got != tc.want {
				t.Fatalf("resolveDSN() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDetermineAddr(t *testing.T) {
	cases := []struct {
		name     string
		flagAddr string
		cfg      func() *config.Config
		want     string
	}{
		{
			name:     "flag wins",
			flagAddr: ":9090",
			cfg:      config.New,
			want:     ":9090",
		},
		{
			name:     "config server port",
			flagAddr: "",
			cfg: func() *config.Config {
				cfg := config.New()
				cfg.Server.Host = "127.0.0.1"
				cfg.Server.Port = 9091
				return cfg
			},
			want: "127.0.0.1:9091",
		},
		{
			name:     "default fallback",
			flagAddr: "",
			cfg: func() *config.Config {
				cfg := config.New()
				cfg.Server.Port = 0
				return cfg
			},
			want: ":8080",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := determineAddr(tc.flagAddr, tc.cfg())
			if got != tc.want {
				t.Fatalf("determineAddr() = %q, want %q", got, tc.want)
			}
		})
	}
}

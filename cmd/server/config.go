package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/yakan-hub/hukuwarai-hontai/fukuwarai"
)

type Config struct {
	bind          string
	port          int
	publicBaseURL string
	maxPlayers    int
	minPlayers    int
	roomTimeout   time.Duration
}

func (c *Config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.minPlayers < 1 || c.maxPlayers < c.minPlayers {
		return errors.New("--max-players must be >= --min-players >= 1")
	}
	return nil
}

func (c *Config) gameConfig() fukuwarai.Config {
	cfg := fukuwarai.DefaultConfig()
	cfg.MaxPlayers = c.maxPlayers
	cfg.MinPlayers = c.minPlayers
	cfg.IdleTimeout = c.roomTimeout
	return cfg
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("FUKUWARAI")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "fukuwarai-server",
		Short:         "Multiplayer fukuwarai (face building) game server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	defaults := fukuwarai.DefaultConfig()
	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: FUKUWARAI_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: FUKUWARAI_PORT)")
	fs.StringVar(&cfg.publicBaseURL, "public-base-url", "http://localhost:8080", "base URL embedded in room QR codes (env: FUKUWARAI_PUBLIC_BASE_URL)")
	fs.IntVar(&cfg.maxPlayers, "max-players", defaults.MaxPlayers, "maximum seats per room (env: FUKUWARAI_MAX_PLAYERS)")
	fs.IntVar(&cfg.minPlayers, "min-players", defaults.MinPlayers, "seats required to start a game (env: FUKUWARAI_MIN_PLAYERS)")
	fs.DurationVar(&cfg.roomTimeout, "room-timeout", defaults.IdleTimeout, "time before viewerless rooms are shut down (env: FUKUWARAI_ROOM_TIMEOUT)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("fukuwarai-server v{{.Version}}\n")
	cmd.SilenceUsage = true

	return cmd
}

// Package config loads settings from flags, OPENTRANSCRIBE_* environment
// variables, an optional .env file and config.yaml, in that precedence.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"opentranscribe/hotkey"
	"opentranscribe/reconcile"
	"opentranscribe/typer"
)

const EnvPrefix = "OPENTRANSCRIBE"

type Config struct {
	ServerURL      string        `mapstructure:"server_url"`
	AuthToken      string        `mapstructure:"auth_token"`
	Device         string        `mapstructure:"device"`
	EmitMode       string        `mapstructure:"emit_mode"`
	Revision       string        `mapstructure:"revision"`
	HotkeyMode     string        `mapstructure:"hotkey_mode"`
	LongPress      time.Duration `mapstructure:"long_press"`
	TUI            bool          `mapstructure:"tui"`
	Beep           bool          `mapstructure:"beep"`
	LogPath        string        `mapstructure:"log_path"`
	MetricsAddr    string        `mapstructure:"metrics_addr"`
	SilenceStop    bool          `mapstructure:"silence_stop"`
	SilenceTimeout time.Duration `mapstructure:"silence_timeout"`
}

var defaults = map[string]any{
	"server_url":      "ws://localhost:8000/stream",
	"auth_token":      "",
	"device":          "",
	"emit_mode":       "type",
	"revision":        "rebase",
	"hotkey_mode":     "toggle",
	"long_press":      350 * time.Millisecond,
	"tui":             true,
	"beep":            true,
	"log_path":        "",
	"metrics_addr":    "",
	"silence_stop":    true,
	"silence_timeout": 30 * time.Second,
}

// Flags registers the command-line overrides on fs. Flag names are the keys
// with dashes.
func Flags(fs *pflag.FlagSet) {
	fs.String("server-url", "", "streaming recognizer WebSocket URL")
	fs.String("auth-token", "", "token sent as Authorization: Bearer")
	fs.String("device", "", "capture device name (substring match)")
	fs.String("emit-mode", "", "how text is emitted: type or paste")
	fs.String("revision", "", "revision policy for corrected finals: rebase or suffix")
	fs.String("hotkey-mode", "", "toggle, or hybrid (tap toggles, hold talks)")
	fs.Duration("long-press", 0, "hold threshold for hybrid hotkey mode")
	fs.Bool("tui", true, "show the terminal display")
	fs.Bool("beep", true, "play start/stop cues")
	fs.String("logpath", "", "log directory")
	fs.String("metrics-addr", "", "serve Prometheus metrics on this address")
	fs.Bool("silence-stop", true, "stop toggle sessions after prolonged silence")
	fs.Duration("silence-timeout", 0, "silence before a toggle session stops")
	fs.String("config", "", "config file (default config.yaml in the config directory)")
}

// Dir is the directory holding config.yaml.
func Dir() string {
	if d, err := os.UserConfigDir(); err == nil {
		return filepath.Join(d, "opentranscribe")
	}
	return "."
}

// Load resolves the configuration. fs may be nil; only flags the user set
// override lower layers.
func Load(v *viper.Viper, fs *pflag.FlagSet) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var file string
	if fs != nil {
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
		file, _ = fs.GetString("config")
	}
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// loadDotEnv fills unset environment variables from path when it exists.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Name == "config" {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if f.Name == "logpath" {
			key = "log_path"
		}
		err = v.BindPFlag(key, f)
	})
	return err
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil {
		return fmt.Errorf("server_url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server_url %q: scheme must be ws or wss", c.ServerURL)
	}
	if u.Host == "" {
		return fmt.Errorf("server_url %q: missing host", c.ServerURL)
	}
	if _, err := typer.ParseMode(c.EmitMode); err != nil {
		return err
	}
	if _, err := reconcile.ParsePolicy(c.Revision); err != nil {
		return err
	}
	if _, err := hotkey.ParseMode(c.HotkeyMode); err != nil {
		return err
	}
	if c.LongPress <= 0 {
		return fmt.Errorf("long_press must be positive, got %v", c.LongPress)
	}
	if c.SilenceTimeout <= 0 {
		return fmt.Errorf("silence_timeout must be positive, got %v", c.SilenceTimeout)
	}
	return nil
}

// The accessors below assume Validate passed.

func (c *Config) Emit() typer.Mode {
	m, _ := typer.ParseMode(c.EmitMode)
	return m
}

func (c *Config) Policy() reconcile.Policy {
	p, _ := reconcile.ParsePolicy(c.Revision)
	return p
}

func (c *Config) Hotkey() hotkey.Mode {
	m, _ := hotkey.ParseMode(c.HotkeyMode)
	return m
}

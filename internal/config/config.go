package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/michaelbrown/artoo/internal/sandbox"
)

type BotConfig struct {
	Name      string        `mapstructure:"name"`
	PollDelay time.Duration `mapstructure:"poll_delay"`
}

type SlackConfig struct {
	APIURL    string   `mapstructure:"api_url"`
	FileHosts []string `mapstructure:"file_hosts"`
}

type StorageConfig struct {
	DBPath    string        `mapstructure:"db_path"`
	Retention time.Duration `mapstructure:"retention"`
}

type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

type Config struct {
	Bot          BotConfig                      `mapstructure:"bot"`
	Sandbox      sandbox.Policy                 `mapstructure:"sandbox"`
	Interpreters map[string]sandbox.Interpreter `mapstructure:"interpreters"`
	Slack        SlackConfig                    `mapstructure:"slack"`
	Storage      StorageConfig                  `mapstructure:"storage"`
	Server       ServerConfig                   `mapstructure:"server"`
}

// Load reads configuration from path, or from artoo.yaml in the working
// directory or $HOME/.artoo when path is empty. A missing config file is
// only an error when path was given explicitly. Every key can be
// overridden from the environment, e.g. ARTOO_SANDBOX_MODE=docker.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("artoo")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.artoo")
	}

	v.SetEnvPrefix("ARTOO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	policy := sandbox.DefaultPolicy()
	v.SetDefault("bot.name", "artoo")
	v.SetDefault("bot.poll_delay", time.Second)
	v.SetDefault("sandbox.mode", string(policy.Mode))
	v.SetDefault("sandbox.root", "")
	v.SetDefault("sandbox.timeout", policy.Timeout)
	v.SetDefault("sandbox.path_prefix", "")
	v.SetDefault("sandbox.docker_image", policy.DockerImage)
	v.SetDefault("sandbox.docker_memory", policy.DockerMemory)
	v.SetDefault("sandbox.network", false)
	v.SetDefault("sandbox.max_output_bytes", policy.MaxOutputBytes)
	interpreters := map[string]any{}
	for name, interp := range sandbox.DefaultInterpreters() {
		interpreters[name] = map[string]any{"command": interp.Command, "extension": interp.Extension}
	}
	v.SetDefault("interpreters", interpreters)
	v.SetDefault("slack.api_url", "https://slack.com/api")
	v.SetDefault("slack.file_hosts", []string{"files.slack.com"})
	v.SetDefault("storage.db_path", filepath.Join(os.Getenv("HOME"), ".artoo", "artoo.db"))
	v.SetDefault("storage.retention", 30*24*time.Hour)
	v.SetDefault("server.listen", "")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the rest of the program cannot work with.
func (c *Config) Validate() error {
	if c.Bot.Name == "" {
		return fmt.Errorf("bot.name must not be empty")
	}
	if c.Bot.PollDelay < 0 {
		return fmt.Errorf("bot.poll_delay must not be negative, got %s", c.Bot.PollDelay)
	}
	if err := c.Sandbox.Validate(); err != nil {
		return fmt.Errorf("sandbox: %w", err)
	}
	if len(c.Interpreters) == 0 {
		return fmt.Errorf("at least one interpreter must be configured")
	}
	for name, interp := range c.Interpreters {
		if interp.Command == "" {
			return fmt.Errorf("interpreter %q has no command", name)
		}
	}
	return nil
}

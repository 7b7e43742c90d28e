package qsdk

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	BaseURL string        `mapstructure:"baseUrl"`
	APIKey  string        `mapstructure:"apiKey"`
	Timeout time.Duration `mapstructure:"timeout"` // HTTP timeout; runs can take up to an hour

	v *viper.Viper // instance-specific viper
}

const (
	EnvPrefix  = "TOOLSITE"
	ConfigName = "toolsite"
	ConfigRoot = ".toolsite"

	BaseUrlKey = "baseUrl"
	APIKeyKey  = "apiKey"
	TimeoutKey = "timeout"

	DefaultBaseURL = "http://127.0.0.1:8000"
)

// LoadConfig creates a new Config instance with its own viper; there is
// no package-level config.
//
// Lookup order: cfgFile when given, else toolsite.yaml in the working
// directory merged with the untracked .toolsite/config.yaml. TOOLSITE_*
// environment variables override both.
func LoadConfig(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only answers Get; Unmarshal needs explicit bindings.
	_ = v.BindEnv(BaseUrlKey, EnvPrefix+"_BASE_URL")
	_ = v.BindEnv(APIKeyKey, EnvPrefix+"_API_KEY")
	_ = v.BindEnv(TimeoutKey, EnvPrefix+"_TIMEOUT")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
	} else {
		for _, name := range []string{ConfigName + ".yaml", ConfigName + ".yml", "." + ConfigName + ".yaml"} {
			if _, err := os.Stat(name); err == nil {
				v.SetConfigFile(name)
				if err := v.ReadInConfig(); err == nil {
					break
				}
			}
		}

		localConfigPath := filepath.Join(ConfigRoot, "config.yaml")
		if _, err := os.Stat(localConfigPath); err == nil {
			v.SetConfigFile(localConfigPath)
			if err := v.MergeInConfig(); err != nil {
				return nil, fmt.Errorf("merging local config: %w", err)
			}
		}
	}

	v.SetDefault(BaseUrlKey, DefaultBaseURL)
	v.SetDefault(TimeoutKey, "65m")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	cfg.v = v
	return &cfg, nil
}

// Viper returns the underlying viper instance so CLI flags can be bound.
func (c *Config) Viper() *viper.Viper {
	return c.v
}

// ConfigFileUsed returns the config file that was used (if any)
func (c *Config) ConfigFileUsed() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

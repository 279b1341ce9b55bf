package config

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/fennwick/scriv/internal/errors"
)

const (
	// DefaultWindow is the quiet window: a batch settles once no new events
	// have arrived for this long.
	DefaultWindow = 30 * time.Second

	// DefaultPushTimeout bounds the exit-time push attempt.
	DefaultPushTimeout = 5 * time.Second

	// LocalConfigName is the per-directory configuration file name.
	LocalConfigName = ".scriv.yaml"
)

// Config holds all scriv application settings
type Config struct {
	// Watch configuration
	WatchPath string        `mapstructure:"-"`
	Recursive bool          `mapstructure:"recursive"`
	Window    time.Duration `mapstructure:"window"`
	Ignore    []string      `mapstructure:"ignore"`
	DryRun    bool          `mapstructure:"-"`

	// Push-on-exit configuration
	PushOnExit    bool          `mapstructure:"push_on_exit"`
	PushTimeout   time.Duration `mapstructure:"push_timeout"`
	SSHAgent      bool          `mapstructure:"ssh_agent"`
	SSHKey        string        `mapstructure:"ssh_key"`
	SSHPassphrase string        `mapstructure:"ssh_passphrase"`

	// User experience
	Verbose bool `mapstructure:"verbose"`

	// Debugging
	Debug   bool   `mapstructure:"debug"`
	LogFile string `mapstructure:"log_file"`

	// Build metadata
	VersionInfo VersionInfo `mapstructure:"-"`
}

// VersionInfo contains build-time version metadata
type VersionInfo struct {
	Version string
	Commit  string
	Date    string
}

// New creates a new Config with default values
func New() *Config {
	return &Config{
		Recursive:   false,
		Window:      DefaultWindow,
		Ignore:      []string{".git"},
		PushOnExit:  false,
		PushTimeout: DefaultPushTimeout,
		Verbose:     true,

		VersionInfo: VersionInfo{
			Version: "dev",
			Commit:  "unknown",
			Date:    "unknown",
		},
	}
}

// GlobalConfigPath returns the path of the user-level configuration file.
func GlobalConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "scriv", "config.yaml")
	}
	return filepath.Join(configDir, "scriv", "config.yaml")
}

// Load layers environment variables and a configuration file over the
// current values. An explicit file path is mandatory when given; otherwise
// the local file in the watched directory is tried, then the global one,
// and a missing file is not an error.
func (c *Config) Load(explicitFile string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	// Current values act as defaults so file and env only override what
	// they actually name.
	v.SetDefault("recursive", c.Recursive)
	v.SetDefault("window", c.Window)
	v.SetDefault("ignore", c.Ignore)
	v.SetDefault("push_on_exit", c.PushOnExit)
	v.SetDefault("push_timeout", c.PushTimeout)
	v.SetDefault("ssh_agent", c.SSHAgent)
	v.SetDefault("ssh_key", c.SSHKey)
	v.SetDefault("ssh_passphrase", c.SSHPassphrase)
	v.SetDefault("verbose", c.Verbose)
	v.SetDefault("debug", c.Debug)
	v.SetDefault("log_file", c.LogFile)

	v.SetEnvPrefix("SCRIV")
	v.AutomaticEnv()

	switch {
	case explicitFile != "":
		v.SetConfigFile(explicitFile)
		if err := v.ReadInConfig(); err != nil {
			return errors.NewConfigError("config", explicitFile,
				errors.Wrap(errors.ErrInvalidConfiguration, err.Error()))
		}
	default:
		for _, candidate := range []string{
			filepath.Join(c.WatchPath, LocalConfigName),
			GlobalConfigPath(),
		} {
			v.SetConfigFile(candidate)
			err := v.ReadInConfig()
			if err == nil {
				break
			}
			if !os.IsNotExist(err) {
				if _, ok := err.(viper.ConfigFileNotFoundError); !ok && fileExists(candidate) {
					return errors.NewConfigError("config", candidate,
						errors.Wrap(errors.ErrInvalidConfiguration, err.Error()))
				}
			}
		}
	}

	if err := v.Unmarshal(c); err != nil {
		return errors.NewConfigError("config", nil,
			errors.Wrap(errors.ErrInvalidConfiguration, err.Error()))
	}

	return nil
}

// Finalize validates and finalizes the configuration
func (c *Config) Finalize() error {
	if c.WatchPath == "" {
		var err error
		c.WatchPath, err = os.Getwd()
		if err != nil {
			return errors.NewConfigError("path", "",
				errors.Wrap(errors.ErrInvalidConfiguration, fmt.Sprintf("failed to get current directory: %v", err)))
		}
	}

	absPath, err := filepath.Abs(c.WatchPath)
	if err != nil {
		return errors.NewConfigError("path", c.WatchPath,
			errors.Wrap(errors.ErrInvalidConfiguration, fmt.Sprintf("failed to resolve absolute path: %v", err)))
	}
	c.WatchPath = absPath

	if c.Window < time.Second {
		return errors.NewConfigError("window", c.Window,
			errors.Wrap(errors.ErrInvalidConfiguration, "quiet window must be at least 1s"))
	}

	if c.PushTimeout < time.Second {
		return errors.NewConfigError("push-timeout", c.PushTimeout,
			errors.Wrap(errors.ErrInvalidConfiguration, "push timeout must be at least 1s"))
	}

	// The two credential mechanisms are mutually exclusive by configuration.
	if c.SSHAgent && c.SSHKey != "" {
		return errors.NewConfigError("ssh-agent/ssh-key", nil,
			errors.Wrap(errors.ErrInvalidConfiguration, "ssh-agent and ssh-key are mutually exclusive"))
	}

	if c.SSHPassphrase != "" && c.SSHKey == "" {
		return errors.NewConfigError("ssh-passphrase", nil,
			errors.Wrap(errors.ErrInvalidConfiguration, "ssh-passphrase requires ssh-key"))
	}

	if (c.SSHAgent || c.SSHKey != "") && !c.PushOnExit {
		return errors.NewConfigError("push-on-exit", nil,
			errors.Wrap(errors.ErrInvalidConfiguration, "an authentication method requires push-on-exit"))
	}

	if c.PushOnExit && !c.SSHAgent && c.SSHKey == "" {
		return errors.NewConfigError("push-on-exit", nil,
			errors.Wrap(errors.ErrInvalidConfiguration, "push-on-exit requires ssh-agent or ssh-key"))
	}

	// Events under the repository metadata directory must never reach the
	// commit pipeline, so the ignore list always carries it.
	if !contains(c.Ignore, ".git") {
		c.Ignore = append(c.Ignore, ".git")
	}

	if c.LogFile == "" {
		logDir := os.Getenv("XDG_DATA_HOME")
		if logDir == "" {
			homeDir, err := os.UserHomeDir()
			if err == nil {
				logDir = filepath.Join(homeDir, ".local", "share")
			} else {
				logDir = os.TempDir()
			}
		}

		pathHash := fmt.Sprintf("%x", sha256.Sum256([]byte(c.WatchPath)))[:16]
		c.LogFile = filepath.Join(logDir, "scriv", "logs", fmt.Sprintf("scriv-%s.log", pathHash))
	}

	return nil
}

func contains(list []string, item string) bool {
	for _, entry := range list {
		if entry == item {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

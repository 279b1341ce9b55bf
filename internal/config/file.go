package config

import (
	"gopkg.in/yaml.v3"
)

// fileConfig mirrors the subset of settings that make sense to persist in a
// configuration file. Credentials are deliberately excluded from the
// generated template; they can still be set by hand or via SCRIV_* env vars.
type fileConfig struct {
	Window      string   `yaml:"window"`
	Recursive   bool     `yaml:"recursive"`
	Ignore      []string `yaml:"ignore"`
	PushOnExit  bool     `yaml:"push_on_exit"`
	PushTimeout string   `yaml:"push_timeout"`
}

// DefaultFileYAML renders the default configuration file written by
// `scriv init`.
func DefaultFileYAML() ([]byte, error) {
	defaults := New()
	return yaml.Marshal(fileConfig{
		Window:      defaults.Window.String(),
		Recursive:   defaults.Recursive,
		Ignore:      defaults.Ignore,
		PushOnExit:  defaults.PushOnExit,
		PushTimeout: defaults.PushTimeout.String(),
	})
}

// Package config defines the application configuration and its loading
// rules.
//
// Values are layered: built-in defaults, then the configuration file (an
// explicit --config path, or .scriv.yaml in the watched directory, or the
// user-level file), then SCRIV_* environment variables, then command-line
// flags. Finalize validates the result, including the mutual exclusion of
// the two push credential mechanisms.
package config

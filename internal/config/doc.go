// Package config loads, normalizes, and validates imagemerge settings.
//
// Values are layered: repository defaults, then a TOML or YAML file, then a
// .env.local file found by walking up from the working directory, then
// IMAGEMERGE_* environment variables. Command-line flags are applied on top
// by the CLI.
package config

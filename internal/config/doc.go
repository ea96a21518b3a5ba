// Package config loads the daemon's YAML configuration.
//
// ${VAR} references are expanded from the environment before parsing, so
// secrets such as the archive database password can stay out of the file.
package config

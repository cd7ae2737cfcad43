// Package config loads the gatewarden TOML configuration file, expanding
// ${VAR} environment references so credentials can live in the environment
// or a .env file.
package config

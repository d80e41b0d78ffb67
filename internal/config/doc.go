// Package config loads the YAML configuration of memsearch-mcp. A missing file
// yields Default(); command line flags and environment variables are applied on
// top by the CLI.
package config

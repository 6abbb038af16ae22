// Package config loads the kexpand YAML configuration file and sets up
// logging.
//
// The file names the model providers to register, their fallback chains,
// catalog price overrides, prompt templates to seed, and defaults for jobs,
// crawls and the HTTP server. Command line flags override file values.
package config

// Package config manages user-level settings stored at ~/.keyhub/config.yaml.
// It provides functions to load, read, and write configuration keys such as
// the registry root, log level, and the package index URL used by the HTTP
// fetcher. Every key can be overridden with a KEYHUB_* environment variable.
package config

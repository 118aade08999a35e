// Package config loads wan24setup's optional YAML configuration file:
// vendor PKI location, KDF cost knobs, and logging defaults.
package config

import (
	"os"

	"gopkg.in/yaml.v3"

	"wan24setup/internal/crypto"
	"wan24setup/internal/errors"
	"wan24setup/internal/log"
)

// DefaultFileName is the config file name looked up in the working
// directory when $WAN24SETUP_CONFIG is unset.
const DefaultFileName = "wan24setup.yaml"

// EnvVar names the environment variable that overrides the config path.
const EnvVar = "WAN24SETUP_CONFIG"

// Config holds the values a YAML file (or its absence) resolves to.
// Defaults() returns the documented defaults; the zero value is not them.
type Config struct {
	VendorPkiPath    string `yaml:"vendorPkiPath"`
	TmpDir           string `yaml:"tmpDir"`
	Argon2MemoryKiB  uint32 `yaml:"argon2MemoryKiB"`
	PBKDF2Iterations int    `yaml:"pbkdf2Iterations"`
	LogLevel         string `yaml:"logLevel"`
	LogFile          string `yaml:"logFile"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		TmpDir:           os.TempDir(),
		Argon2MemoryKiB:  crypto.Argon2MemoryKiB,
		PBKDF2Iterations: crypto.PBKDF2Iterations,
		LogLevel:         "info",
	}
}

// Load reads the config file named by $WAN24SETUP_CONFIG, falling back to
// ./wan24setup.yaml. A missing file is not an error: Defaults() is
// returned unchanged. A present-but-malformed file is.
func Load() (Config, error) {
	path := os.Getenv(EnvVar)
	if path == "" {
		path = DefaultFileName
	}
	return LoadFrom(path)
}

// LoadFrom reads and merges path over Defaults(). A missing file at path
// is not an error.
func LoadFrom(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.NewFileError("read", path, err)
	}

	// Unmarshal into a copy carrying zero values for any field the file
	// doesn't mention, then only overwrite non-zero fields onto defaults,
	// so a partial config file still inherits the rest of Defaults().
	var fromFile Config
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return cfg, errors.Wrap(err, "parse config "+path)
	}
	mergeNonZero(&cfg, fromFile)

	return cfg, nil
}

func mergeNonZero(dst *Config, src Config) {
	if src.VendorPkiPath != "" {
		dst.VendorPkiPath = src.VendorPkiPath
	}
	if src.TmpDir != "" {
		dst.TmpDir = src.TmpDir
	}
	if src.Argon2MemoryKiB != 0 {
		dst.Argon2MemoryKiB = src.Argon2MemoryKiB
	}
	if src.PBKDF2Iterations != 0 {
		dst.PBKDF2Iterations = src.PBKDF2Iterations
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.LogFile != "" {
		dst.LogFile = src.LogFile
	}
}

// LogLevelValue maps the config's string log level to log.Level, defaulting
// to log.LevelInfo for an unrecognized value.
func (c Config) LogLevelValue() log.Level {
	switch c.LogLevel {
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}

// RequireVendorPki returns the resolved vendor PKI path, or ErrUsage if
// neither the config nor flagPath names one. install/signKey call this;
// create/extract never do (open question #1).
func (c Config) RequireVendorPki(flagPath string) (string, error) {
	if flagPath != "" {
		return flagPath, nil
	}
	if c.VendorPkiPath != "" {
		return c.VendorPkiPath, nil
	}
	return "", errors.Wrap(errors.ErrUsage, "vendor PKI trust store path required: pass --vendorPki or set vendorPkiPath in "+DefaultFileName)
}

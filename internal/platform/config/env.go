package config

import (
	"os"
	"strconv"

	"github.com/mixmaster-audio/pipeline/internal/platform/logger"
)

// GetEnv reads an environment variable, logging which source (environment
// or default) supplied the value. log may be nil.
func GetEnv(key, defaultVal string, log *logger.Logger) string {
	if log != nil {
		log = log.With("env_var", key)
	}
	val, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("environment variable not found, using default", "default", defaultVal)
		}
		return defaultVal
	}
	if log != nil {
		log.Debug("environment variable found", "value", val)
	}
	return val
}

// GetEnvAsInt is GetEnv plus integer parsing; a value present but
// unparseable falls back to defaultVal rather than failing config load.
func GetEnvAsInt(key string, defaultVal int, log *logger.Logger) int {
	if log != nil {
		log = log.With("env_var", key)
	}
	valStr, ok := os.LookupEnv(key)
	if !ok {
		if log != nil {
			log.Debug("environment variable not found, using default", "default", defaultVal)
		}
		return defaultVal
	}
	i, err := strconv.Atoi(valStr)
	if err != nil {
		if log != nil {
			log.Debug("environment variable could not be parsed as int, using default", "provided", valStr, "error", err)
		}
		return defaultVal
	}
	return i
}

// GetEnvAsBool is GetEnv plus boolean parsing via strconv.ParseBool.
func GetEnvAsBool(key string, defaultVal bool, log *logger.Logger) bool {
	if log != nil {
		log = log.With("env_var", key)
	}
	valStr, ok := os.LookupEnv(key)
	if !ok {
		return defaultVal
	}
	b, err := strconv.ParseBool(valStr)
	if err != nil {
		if log != nil {
			log.Debug("environment variable could not be parsed as bool, using default", "provided", valStr, "error", err)
		}
		return defaultVal
	}
	return b
}

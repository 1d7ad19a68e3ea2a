package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// DefaultDotEnvFile is read by LoadDotEnv when no explicit paths are given.
const DefaultDotEnvFile = ".env"

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadDotEnv copies variables from dotenv files into the process environment.
//
// Variables already present in the environment win over file values. A missing
// file is not an error so deployments without a .env keep working.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{DefaultDotEnvFile}
	}
	for _, path := range paths {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load dotenv %s: %w", path, err)
		}
	}
	return nil
}

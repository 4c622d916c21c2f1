package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret reads the secret named envName. envName+"_FILE" names a
// file holding the value and wins over envName itself. Neither set yields
// an empty string.
func ResolveSecret(envName string) (string, error) {
	return resolveSecret(os.Getenv, os.ReadFile, envName)
}

func resolveSecret(getenv func(string) string, readFile func(string) ([]byte, error), envName string) (string, error) {
	fileEnv := envName + "_FILE"
	path := getenv(fileEnv)
	if path == "" {
		return getenv(envName), nil
	}
	content, err := readFile(path)
	if err != nil {
		// The error names the variable and path, never the content.
		return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, path, err)
	}
	return strings.TrimSpace(string(content)), nil
}

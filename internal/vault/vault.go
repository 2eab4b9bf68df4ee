package vault

import (
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const serviceName = "mangatl"

// knownEngines is the list of translation engine IDs checked by List().
var knownEngines = []string{"zhipu-glm4", "google", "baidu", "deepl", "nllb"}

// Vault provides secure translation-engine API key storage using the OS
// keychain, with fallback to environment variables.
type Vault struct{}

// New creates a new Vault instance.
func New() *Vault {
	return &Vault{}
}

// Set stores an API key for the given engine ID in the OS keychain.
func (v *Vault) Set(engineID, key string) error {
	return keyring.Set(serviceName, engineID, key)
}

// Get retrieves the API key for the given engine ID. It first checks the
// OS keychain, then falls back to the environment variable
// MANGATL_ENGINE_KEY_{UPPER(engineID)}, with hyphens in engineID replaced
// by underscores.
func (v *Vault) Get(engineID string) (string, error) {
	secret, err := keyring.Get(serviceName, engineID)
	if err == nil && secret != "" {
		return secret, nil
	}

	envKey := envVarFor(engineID)
	if val := os.Getenv(envKey); val != "" {
		return val, nil
	}

	return "", fmt.Errorf("no key found for engine %q: not in keychain and %s not set", engineID, envKey)
}

// Delete removes the API key for the given engine ID from the OS keychain.
func (v *Vault) Delete(engineID string) error {
	return keyring.Delete(serviceName, engineID)
}

// List returns the IDs of known engines that currently have keys stored.
// It checks both the keychain and environment variables for each engine.
func (v *Vault) List() ([]string, error) {
	var engines []string

	for _, engineID := range knownEngines {
		secret, err := keyring.Get(serviceName, engineID)
		if err == nil && secret != "" {
			engines = append(engines, engineID)
			continue
		}

		if val := os.Getenv(envVarFor(engineID)); val != "" {
			engines = append(engines, engineID)
		}
	}

	return engines, nil
}

func envVarFor(engineID string) string {
	return "MANGATL_ENGINE_KEY_" + strings.ToUpper(strings.ReplaceAll(engineID, "-", "_"))
}

// ResolveKeyRef parses a key reference and retrieves the corresponding API key.
// Supported formats:
//   - "keyring://mangatl/<engineID>" (preferred)
//   - "keychain:mangatl/<engineID>" (legacy)
//   - "env:VARIABLE_NAME" (environment variable)
//   - "file:///path/to/key" (plain-text file)
func (v *Vault) ResolveKeyRef(keyRef string) (string, error) {
	if strings.HasPrefix(keyRef, "keyring://") {
		path := strings.TrimPrefix(keyRef, "keyring://")
		parts := strings.SplitN(path, "/", 2)
		if len(parts) != 2 || parts[0] != serviceName || parts[1] == "" {
			return "", fmt.Errorf("invalid key reference format: %q (expected \"keyring://mangatl/<engineID>\")", keyRef)
		}
		return v.Get(parts[1])
	}

	if strings.HasPrefix(keyRef, "keychain:") {
		path := strings.TrimPrefix(keyRef, "keychain:")
		parts := strings.SplitN(path, "/", 2)
		if len(parts) != 2 || parts[0] != serviceName || parts[1] == "" {
			return "", fmt.Errorf("invalid key reference path: %q (expected \"mangatl/<engineID>\")", path)
		}
		return v.Get(parts[1])
	}

	if strings.HasPrefix(keyRef, "env:") {
		envVar := strings.TrimPrefix(keyRef, "env:")
		if val := os.Getenv(envVar); val != "" {
			return val, nil
		}
		return "", fmt.Errorf("environment variable %q is not set", envVar)
	}

	if strings.HasPrefix(keyRef, "file://") {
		filePath := strings.TrimPrefix(keyRef, "file://")
		data, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("reading key file %q: %w", filePath, err)
		}
		key := strings.TrimSpace(string(data))
		if key == "" {
			return "", fmt.Errorf("key file %q is empty", filePath)
		}
		return key, nil
	}

	return "", fmt.Errorf("invalid key reference format: %q (expected \"keyring://mangatl/<engineID>\", \"keychain:mangatl/<engineID>\", \"env:VARIABLE_NAME\", or \"file:///path/to/key\")", keyRef)
}

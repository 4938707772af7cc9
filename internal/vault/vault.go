// Package vault stores the credentials promptstudio presents to its
// enrichment collaborators. Secrets live in the OS keychain, with
// environment variables as a fallback for headless machines.
package vault

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

const serviceName = "promptstudio"

// envPrefix is prepended to the upper-cased credential name when falling
// back to the environment, e.g. PROMPTSTUDIO_KEY_ENRICHMENT.
const envPrefix = "PROMPTSTUDIO_KEY_"

// ErrNoCredential is returned (wrapped) when a credential is neither in the
// keychain nor in the environment.
var ErrNoCredential = errors.New("no credential found")

// KnownNames lists the credentials the keys command manages.
var KnownNames = []string{"enrichment", "webhook"}

// Vault reads and writes named credentials.
type Vault struct{}

// New creates a new Vault instance.
func New() *Vault {
	return &Vault{}
}

func envName(name string) string {
	return envPrefix + strings.ToUpper(strings.ReplaceAll(name, "-", "_"))
}

// Set stores a credential in the OS keychain.
func (v *Vault) Set(name, secret string) error {
	return keyring.Set(serviceName, name, secret)
}

// Get returns the named credential from the keychain, then from
// PROMPTSTUDIO_KEY_<NAME>.
func (v *Vault) Get(name string) (string, error) {
	if secret, err := keyring.Get(serviceName, name); err == nil && secret != "" {
		return secret, nil
	}
	if val := os.Getenv(envName(name)); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("credential %q: %w (not in keychain and %s not set)", name, ErrNoCredential, envName(name))
}

// Delete removes a credential from the OS keychain.
func (v *Vault) Delete(name string) error {
	return keyring.Delete(serviceName, name)
}

// List returns the known credential names that currently resolve.
func (v *Vault) List() []string {
	var names []string
	for _, name := range KnownNames {
		if _, err := v.Get(name); err == nil {
			names = append(names, name)
		}
	}
	return names
}

// ResolveKeyRef resolves a credential reference from the config file.
// Supported forms:
//   - "keyring://promptstudio/<name>"
//   - "env:VARIABLE_NAME"
//   - "file:///path/to/secret"
//
// An empty reference resolves to an empty secret, meaning the collaborator
// is called without an Authorization header.
func (v *Vault) ResolveKeyRef(keyRef string) (string, error) {
	switch {
	case keyRef == "":
		return "", nil

	case strings.HasPrefix(keyRef, "keyring://"):
		service, name, ok := strings.Cut(strings.TrimPrefix(keyRef, "keyring://"), "/")
		if !ok || service != serviceName || name == "" {
			return "", fmt.Errorf("invalid key reference %q (expected \"keyring://%s/<name>\")", keyRef, serviceName)
		}
		return v.Get(name)

	case strings.HasPrefix(keyRef, "env:"):
		envVar := strings.TrimPrefix(keyRef, "env:")
		if val := os.Getenv(envVar); val != "" {
			return val, nil
		}
		return "", fmt.Errorf("environment variable %q: %w", envVar, ErrNoCredential)

	case strings.HasPrefix(keyRef, "file://"):
		path := strings.TrimPrefix(keyRef, "file://")
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading key file %q: %w", path, err)
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("key file %q is empty", path)
		}
		return secret, nil
	}

	return "", fmt.Errorf("invalid key reference %q (expected keyring://, env: or file://)", keyRef)
}

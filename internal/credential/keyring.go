package credential

import (
	"fmt"
	"os"

	"github.com/99designs/keyring"
)

const serviceName = "swiftshield"

// Well-known credential keys.
const (
	KeyBackendToken = "backend-token"
	KeyMailPassword = "mail-password"
	KeyWebhookToken = "sms-webhook-token"
)

// envFallback maps credential keys to environment variables checked
// before the keyring.
var envFallback = map[string]string{
	KeyBackendToken: "SWIFTSHIELD_BACKEND_TOKEN",
	KeyMailPassword: "SWIFTSHIELD_MAIL_PASSWORD",
	KeyWebhookToken: "SWIFTSHIELD_WEBHOOK_TOKEN",
}

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/swiftshield/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("swiftshield-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Lookup returns a credential from its environment variable if set,
// otherwise from the system keyring. A missing credential yields "" and
// no error.
func Lookup(key string) string {
	if env, ok := envFallback[key]; ok {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}

	v, err := Get(key)
	if err != nil {
		return ""
	}
	return v
}

// Get retrieves a credential value by key from the system keyring.
func Get(key string) (string, error) {
	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key in the system keyring.
func Set(key string, value string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "SwiftShield " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key from the system keyring.
func Delete(key string) error {
	ring, err := openKeyring()
	if err != nil {
		return err
	}

	err = ring.Remove(key)
	if err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}

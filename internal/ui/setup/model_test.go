package setup

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/earlfranciss/swiftshield/internal/credential"
	"github.com/earlfranciss/swiftshield/internal/model"
)

func TestSaveWritesConfigAndEnteredSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := &model.AppConfig{}
	cfg.Backend.BaseURL = "https://api.example.com"
	cfg.Mail.Host = "imap.example.com"
	cfg.Mail.Port = "993"
	cfg.Mail.Username = "me@example.com"

	stored := map[string]string{}
	m := New(path, cfg, func(key, value string) error {
		stored[key] = value
		return nil
	})
	m.state.pollInterval = "120"
	m.state.deviceTokens = " tok-a, ,tok-b "
	m.state.mailPassword = "app-password"

	if err := m.save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := model.LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.Backend.BaseURL != "https://api.example.com" || loaded.Mail.Username != "me@example.com" {
		t.Errorf("config not written: %+v", loaded)
	}
	if loaded.Mail.PollIntervalSec != 120 {
		t.Errorf("expected poll interval 120, got %d", loaded.Mail.PollIntervalSec)
	}
	if len(loaded.Push.DeviceTokens) != 2 || loaded.Push.DeviceTokens[1] != "tok-b" {
		t.Errorf("unexpected device tokens %v", loaded.Push.DeviceTokens)
	}

	if stored[credential.KeyMailPassword] != "app-password" {
		t.Errorf("mail password not stored: %v", stored)
	}
	if _, ok := stored[credential.KeyBackendToken]; ok {
		t.Error("a blank secret must keep the stored one")
	}
}

func TestSaveReportsSecretFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := &model.AppConfig{}
	cfg.Mail.PollIntervalSec = 60

	m := New(path, cfg, func(string, string) error { return errors.New("locked") })
	m.state.backendToken = "secret"

	if err := m.save(); err == nil {
		t.Fatal("expected keyring failure to surface")
	}
}

func TestValidators(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(string) error
		input   string
		wantErr bool
	}{
		{"url ok", validateURL, "https://api.example.com", false},
		{"url missing host", validateURL, "api.example.com", true},
		{"url empty", validateURL, "", true},
		{"optional url empty", validateOptionalURL, "", false},
		{"optional url bad", validateOptionalURL, "nats", true},
		{"addr ok", validateOptionalAddr, "127.0.0.1:8088", false},
		{"addr port only", validateOptionalAddr, ":8088", false},
		{"addr missing port", validateOptionalAddr, "localhost", true},
		{"port ok", validatePort, "993", false},
		{"port letters", validatePort, "99a", true},
		{"positive ok", validatePositive, "60", false},
		{"positive zero", validatePositive, "0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("%q: wantErr=%v, got %v", tt.input, tt.wantErr, err)
			}
		})
	}
}

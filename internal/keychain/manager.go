// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain keeps leadbot's secrets in the OS credential store: the
// CRM OAuth token, the session state shown by whoami, and the audit
// database DSN.
//
// macOS uses the security command when available and falls back to the
// keyring library. Windows uses Credential Manager. Linux tries Secret
// Service, KWallet and pass, plus an encrypted file when
// LEADBOT_KEYRING_PASSWORD is set.
package keychain

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/99designs/keyring"

	"leadbot/cli/internal/xdg"
)

// ServiceName identifies our keychain namespace.
const ServiceName = "leadbot"

// Keys used for storing secrets.
const (
	KeyCRMToken  = "crm_token"
	KeyAuthState = "auth_state"
	KeyAuditDSN  = "audit_dsn"
)

// PasswordEnv unlocks the file backend on headless Linux hosts.
const PasswordEnv = "LEADBOT_KEYRING_PASSWORD"

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("secret not found")

var (
	globalManager *Manager
	mu            sync.Mutex
)

// backend is the minimal key/value surface shared by the native macOS
// backend and the keyring library.
type backend interface {
	Set(key string, value []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
}

// Manager provides thread-safe access to the credential store.
type Manager struct {
	mu      sync.RWMutex
	backend backend
}

// New wraps an already opened keyring. Tests pass keyring.NewArrayKeyring.
func New(ring keyring.Keyring) *Manager {
	return &Manager{backend: ringBackend{ring: ring}}
}

// NewManager opens the platform credential store.
func NewManager() (*Manager, error) {
	if runtime.GOOS == "darwin" {
		if b, err := newSecurityBackend(); err == nil {
			return &Manager{backend: b}, nil
		}
	}
	ring, err := openRing()
	if err != nil {
		return nil, err
	}
	return New(ring), nil
}

// GetManager returns the process-wide manager, opening it on first use.
// A failed open is retried on the next call.
func GetManager() (*Manager, error) {
	mu.Lock()
	defer mu.Unlock()
	if globalManager != nil {
		return globalManager, nil
	}
	m, err := NewManager()
	if err != nil {
		return nil, err
	}
	globalManager = m
	return m, nil
}

func openRing() (keyring.Keyring, error) {
	cfg := keyring.Config{
		ServiceName:             ServiceName,
		PassPrefix:              ServiceName,
		WinCredPrefix:           ServiceName,
		KWalletAppID:            ServiceName,
		KWalletFolder:           ServiceName,
		LibSecretCollectionName: ServiceName,
	}

	switch runtime.GOOS {
	case "darwin":
		cfg.AllowedBackends = []keyring.BackendType{keyring.KeychainBackend, keyring.PassBackend}
	case "windows":
		cfg.AllowedBackends = []keyring.BackendType{keyring.WinCredBackend}
	default:
		cfg.AllowedBackends = []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.PassBackend,
		}
		if pw := os.Getenv(PasswordEnv); pw != "" {
			dir, err := xdg.StateDir()
			if err != nil {
				return nil, err
			}
			cfg.AllowedBackends = append(cfg.AllowedBackends, keyring.FileBackend)
			cfg.FileDir = filepath.Join(dir, "keyring")
			cfg.FilePasswordFunc = keyring.FixedStringPrompt(pw)
		}
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		if runtime.GOOS != "darwin" && runtime.GOOS != "windows" {
			return nil, errors.New("no secure storage available; install a Secret Service provider or set " + PasswordEnv)
		}
		return nil, err
	}
	return ring, nil
}

// Set stores value under key.
func (m *Manager) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend.Set(key, value)
}

// Get returns the value stored under key, or ErrNotFound.
func (m *Manager) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, err := m.backend.Get(key)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	return data, nil
}

// Remove deletes key. Removing a missing key is not an error.
func (m *Manager) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.backend.Delete(key); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// SaveToken stores the serialized OAuth token.
func (m *Manager) SaveToken(data []byte) error { return m.Set(KeyCRMToken, data) }

// LoadToken returns the serialized OAuth token.
func (m *Manager) LoadToken() ([]byte, error) { return m.Get(KeyCRMToken) }

// SaveAuthState stores serialized session state.
func (m *Manager) SaveAuthState(data []byte) error { return m.Set(KeyAuthState, data) }

// LoadAuthState returns serialized session state.
func (m *Manager) LoadAuthState() ([]byte, error) { return m.Get(KeyAuthState) }

// SaveAuditDSN stores the audit database DSN.
func (m *Manager) SaveAuditDSN(dsn string) error { return m.Set(KeyAuditDSN, []byte(dsn)) }

// LoadAuditDSN returns the audit database DSN.
func (m *Manager) LoadAuditDSN() (string, error) {
	data, err := m.Get(KeyAuditDSN)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ClearAuth removes the token and session state.
func (m *Manager) ClearAuth() error {
	return errors.Join(m.Remove(KeyCRMToken), m.Remove(KeyAuthState))
}

// ClearAll removes every secret leadbot stores.
func (m *Manager) ClearAll() error {
	return errors.Join(m.ClearAuth(), m.Remove(KeyAuditDSN))
}

type ringBackend struct {
	ring keyring.Keyring
}

func (r ringBackend) Set(key string, value []byte) error {
	return r.ring.Set(keyring.Item{Key: key, Data: value, Label: ServiceName + " " + key})
}

func (r ringBackend) Get(key string) ([]byte, error) {
	it, err := r.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return it.Data, nil
}

func (r ringBackend) Delete(key string) error {
	err := r.ring.Remove(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return ErrNotFound
	}
	return err
}

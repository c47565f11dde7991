// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package keychain provides centralized, thread-safe keychain operations for querydeck.
// This module manages all interactions with the OS keychain/credential store and is
// the only place the engine password is read from or written to. Connection settings
// themselves are non-secret and live in internal/config.
//
// The package supports macOS Keychain, Windows Credential Manager and the Secret
// Service / pass backends on Linux, with thread-safe operations and proper error
// handling.
package keychain

import (
	"errors"
	"runtime"
	"sync"

	"github.com/99designs/keyring"
)

// Global keychain manager instance
var (
	globalManager *Manager
	globalError   error
	mu            sync.Mutex
)

// Manager provides centralized, thread-safe operations for the OS keychain.
type Manager struct {
	mu      sync.RWMutex
	ring    keyring.Keyring
	backend keychainBackend
}

// keychainBackend defines the interface for keychain operations.
type keychainBackend interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
}

// ServiceName identifies our keychain/credential store namespace.
const ServiceName = "querydeck"

// Keys used for storing secrets in the OS keychain.
const (
	// KeyEnginePassword is the basic-auth password for the query engine.
	KeyEnginePassword = "engine_password"
)

// NewManager creates a new keychain manager with the OS keyring initialized.
func NewManager() (*Manager, error) {
	// Try native security backend first on macOS
	if runtime.GOOS == "darwin" {
		backend, err := newSecurityBackend()
		if err == nil {
			return &Manager{backend: backend}, nil
		}
		// Fall through to keyring library if security command fails
	}

	ring, err := openRing()
	if err != nil {
		return nil, err
	}

	return &Manager{
		ring: ring,
	}, nil
}

// GetManager returns the global keychain manager instance.
// If not initialized, it will be created on first call.
// If initialization fails, it will retry on subsequent calls.
func GetManager() (*Manager, error) {
	mu.Lock()
	defer mu.Unlock()

	if globalManager != nil {
		return globalManager, nil
	}

	globalManager, globalError = NewManager()
	if globalError != nil {
		return nil, globalError
	}

	return globalManager, nil
}

// openRing opens the OS keyring using native platform backends.
func openRing() (keyring.Keyring, error) {
	var allowedBackends []keyring.BackendType
	switch runtime.GOOS {
	case "darwin":
		// Try macOS Keychain first, then pass (password store) as fallback.
		allowedBackends = []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.PassBackend,
		}
	case "windows":
		allowedBackends = []keyring.BackendType{keyring.WinCredBackend}
	default:
		allowedBackends = []keyring.BackendType{
			keyring.SecretServiceBackend,
			keyring.PassBackend,
		}
	}

	cfg := keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: allowedBackends,
		PassPrefix:      ServiceName,
	}
	if runtime.GOOS == "windows" {
		cfg.WinCredPrefix = ServiceName
	}

	ring, err := keyring.Open(cfg)
	if err != nil {
		return nil, errors.New("no usable OS credential store found")
	}

	return ring, nil
}

// SaveEnginePassword stores the engine basic-auth password in the OS keychain.
// This method is thread-safe.
func (m *Manager) SaveEnginePassword(password string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend != nil {
		return m.backend.Set(KeyEnginePassword, password)
	}
	return m.ring.Set(keyring.Item{Key: KeyEnginePassword, Data: []byte(password)})
}

// LoadEnginePassword retrieves the engine password from the keychain.
// A missing entry yields an empty password and no error, because
// password-less coordinators are common in development setups.
// This method is thread-safe.
func (m *Manager) LoadEnginePassword() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.backend != nil {
		pw, err := m.backend.Get(KeyEnginePassword)
		if err != nil {
			return "", nil
		}
		return pw, nil
	}

	it, err := m.ring.Get(KeyEnginePassword)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return "", nil
		}
		return "", err
	}
	return string(it.Data), nil
}

// ClearEnginePassword removes the stored engine password from the keychain.
// This method is thread-safe.
func (m *Manager) ClearEnginePassword() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend != nil {
		return m.backend.Delete(KeyEnginePassword)
	}
	_ = m.ring.Remove(KeyEnginePassword)
	return nil
}

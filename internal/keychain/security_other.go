// Copyright (c) 2025 Querydeck
// Licensed under the MIT License. See LICENSE file in the project root for details.

//go:build !darwin

package keychain

import "errors"

// newSecurityBackend is not available on non-darwin platforms.
// The keyring library backends are used instead.
func newSecurityBackend() (keychainBackend, error) {
	return nil, errors.New("security backend only available on macOS")
}

// Copyright 2025 The go-airgap-keyring Authors
// This file is part of the go-airgap-keyring library.
//
// The go-airgap-keyring library is free software: you can redistribute it
// and/or modify it under the terms of the GNU Lesser General Public License
// as published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// The go-airgap-keyring library is distributed in the hope that it will be
// useful, but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-airgap-keyring library. If not, see
// <http://www.gnu.org/licenses/>.

package qrwallet

import "errors"

// ErrNotInitialized is returned when an operation requiring the device
// fingerprint, extended key or derivation path is attempted before a
// successful device read has populated them.
var ErrNotInitialized = errors.New("keyring not initialized")

// ErrInvalidDeviceData is returned when a device descriptor is structurally
// recognized but lacks mandatory fields, most importantly the master
// fingerprint anchoring the keyring to the physical signer.
var ErrInvalidDeviceData = errors.New("invalid device data")

// ErrUnsupportedDeviceData is returned when the device produces a descriptor
// variant this keyring does not understand. There is no fallback.
var ErrUnsupportedDeviceData = errors.New("unsupported device data")

// ErrUnknownAddress is returned when an address cannot be resolved to a
// derivation path, either because the brute-force scan was exhausted or
// because the device never enumerated it.
var ErrUnknownAddress = errors.New("unknown address")

// ErrAddressNotFound is returned when an account removal targets an address
// that is not a member of the unlocked account list.
var ErrAddressNotFound = errors.New("address not found in keyring")

// ErrUserCanceled is returned when the user aborts either transport phase of
// a device exchange. No retry is attempted; re-showing or re-scanning the
// code is the caller's decision.
var ErrUserCanceled = errors.New("user canceled")

// ErrReadCanceled is returned by interaction providers when a scan is
// abandoned before a complete payload was assembled.
var ErrReadCanceled = errors.New("read canceled")

// ErrCorrelationMismatch is returned when a signature response carries a
// request identifier that disagrees with the request it answers. This guards
// against a stale or swapped code being accepted.
var ErrCorrelationMismatch = errors.New("signature request id mismatch")

// ErrDerivation is returned when the extended public key is malformed or the
// derivation path cannot be parsed or descended.
var ErrDerivation = errors.New("address derivation failed")

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

// Package qrwallet implements an air-gapped signing keyring driven over a
// QR code transport. The keyring mirrors an externally held hierarchical
// deterministic key as a set of derivable addresses and obtains signatures
// through a challenge/response exchange of rendered and scanned codes. No
// private key material ever enters the process.
package qrwallet

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// Keyring is the public surface of the air-gapped signer: device reads,
// account enumeration, pagination and signing composed over one exclusively
// owned state record.
//
// A keyring drives at most one device exchange at a time; the mutex
// serializes exchanges and guards the state record against concurrent
// callers.
type Keyring struct {
	provider InteractionProvider // QR transport the exchanges run over
	state    State
	mu       sync.Mutex
	log      log.Logger
}

// New creates an empty, uninitialized keyring. The first pagination or an
// explicit ReadKeyring populates it from the device.
func New(provider InteractionProvider) *Keyring {
	return &Keyring{
		provider: provider,
		state:    newState(),
		log:      log.New("keyring", "qr"),
	}
}

// NewFromDevice creates a keyring and performs the initializing device read
// synchronously before returning.
func NewFromDevice(provider InteractionProvider) (*Keyring, error) {
	k := New(provider)
	if _, err := k.ReadKeyring(); err != nil {
		return nil, err
	}
	return k, nil
}

// ReadKeyring requests a public key descriptor from the device and folds it
// into the keyring state. It returns the number of accounts not seen before,
// so re-reads against a multi-account device can report "no new accounts"
// distinctly from failure. The unlocked account list and the path cache
// survive re-initialization.
func (k *Keyring) ReadKeyring() (int, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.readKeyring()
}

// readKeyring is the internal device read. Callers hold k.mu.
func (k *Keyring) readKeyring() (int, error) {
	descriptor, err := k.provider.ReadKeyDescriptor()
	if err != nil {
		if errors.Is(err, ErrReadCanceled) {
			return 0, ErrUserCanceled
		}
		return 0, err
	}
	switch d := descriptor.(type) {
	case *HDKeyDescriptor:
		return 0, k.syncHDKey(d)
	case *MultiAccountDescriptor:
		return k.syncAccounts(d)
	default:
		return 0, fmt.Errorf("%w: descriptor type %T", ErrUnsupportedDeviceData, descriptor)
	}
}

// syncHDKey folds an extended public key descriptor into the state and
// switches the keyring to HD mode.
func (k *Keyring) syncHDKey(d *HDKeyDescriptor) error {
	if d.Fingerprint == ([4]byte{}) {
		return fmt.Errorf("%w: descriptor lacks master fingerprint", ErrInvalidDeviceData)
	}
	if _, err := hdkeychain.NewKeyFromString(d.ExtendedKey); err != nil {
		return fmt.Errorf("%w: malformed extended public key: %v", ErrInvalidDeviceData, err)
	}
	k.state.XFP = hex.EncodeToString(d.Fingerprint[:])
	k.state.XPub = d.ExtendedKey
	k.state.HDPath = d.Path
	if d.ChildrenPath != "" {
		k.state.ChildrenPath = d.ChildrenPath
	} else {
		k.state.ChildrenPath = DefaultChildrenPath
	}
	if d.Name != "" {
		k.state.Name = d.Name
	}
	if d.Variant != "" {
		k.state.Account = d.Variant
	}
	k.state.Mode = KeyModeHD
	k.state.Initialized = true

	k.log.Info("Synced HD key descriptor", "xfp", k.state.XFP, "path", d.Path, "children", k.state.ChildrenPath)
	return nil
}

// syncAccounts folds a multi-account descriptor into the state, switches the
// keyring to pubkey mode and reports how many of the enumerated accounts
// were not known before.
func (k *Keyring) syncAccounts(d *MultiAccountDescriptor) (int, error) {
	if d.Fingerprint == ([4]byte{}) {
		return 0, fmt.Errorf("%w: descriptor lacks master fingerprint", ErrInvalidDeviceData)
	}
	if len(d.Accounts) == 0 {
		return 0, fmt.Errorf("%w: descriptor enumerates no accounts", ErrInvalidDeviceData)
	}
	discovered := 0
	for _, account := range d.Accounts {
		if _, known := k.state.Paths[account.Address]; !known {
			discovered++
		}
		k.state.Paths[account.Address] = account.Path
	}
	if name := d.Accounts[0].Name; name != "" {
		k.state.Name = name
	}
	if variant := d.Accounts[0].Variant; variant != "" {
		k.state.Account = variant
	}
	k.state.XFP = hex.EncodeToString(d.Fingerprint[:])
	k.state.Mode = KeyModePubkey
	k.state.Initialized = true

	k.log.Info("Synced account descriptor", "xfp", k.state.XFP, "accounts", len(d.Accounts), "new", discovered)
	return discovered, nil
}

// Accounts returns a copy of the unlocked account list.
func (k *Keyring) Accounts() []common.Address {
	k.mu.Lock()
	defer k.mu.Unlock()

	cpy := make([]common.Address, len(k.state.Accounts))
	copy(cpy, k.state.Accounts)
	return cpy
}

// CurrentAccount returns the currently selected unlocked account.
func (k *Keyring) CurrentAccount() (common.Address, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if len(k.state.Accounts) == 0 {
		return common.Address{}, fmt.Errorf("%w: no unlocked accounts", ErrAddressNotFound)
	}
	return k.state.Accounts[k.state.CurrentAccount], nil
}

// SetCurrentAccount selects the account at the given position of the
// unlocked list.
func (k *Keyring) SetCurrentAccount(index int) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if index < 0 || index >= len(k.state.Accounts) {
		return fmt.Errorf("%w: account index %d out of range", ErrAddressNotFound, index)
	}
	k.state.CurrentAccount = index
	return nil
}

// RemoveAccount drops the address from the unlocked account list. Matching
// is case-insensitive on the hex form; the path cache entry is kept so a
// later re-unlock needs no rederivation.
func (k *Keyring) RemoveAccount(address string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: %s", ErrAddressNotFound, address)
	}
	target := common.HexToAddress(address)

	filtered := make([]common.Address, 0, len(k.state.Accounts))
	found := false
	for _, account := range k.state.Accounts {
		if account == target {
			found = true
			continue
		}
		filtered = append(filtered, account)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrAddressNotFound, address)
	}
	k.state.Accounts = filtered
	if k.state.CurrentAccount >= len(filtered) {
		k.state.CurrentAccount = 0
	}
	k.log.Debug("Removed keyring account", "address", target)
	return nil
}

// Serialize encodes the keyring state for persistence. The encoding is
// stable: serializing, restoring and serializing again yields identical
// bytes.
func (k *Keyring) Serialize() ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	return json.Marshal(&k.state)
}

// Deserialize restores a previously serialized keyring state, applying the
// layout defaults for fields older records omit.
func (k *Keyring) Deserialize(blob []byte) error {
	state := State{}
	if err := json.Unmarshal(blob, &state); err != nil {
		return err
	}
	if state.Version > stateVersion {
		return fmt.Errorf("unsupported keyring state version %d", state.Version)
	}
	if state.Version == 0 {
		state.Version = stateVersion
	}
	if state.PerPage == 0 {
		state.PerPage = DefaultPerPage
	}
	if state.ChildrenPath == "" {
		state.ChildrenPath = DefaultChildrenPath
	}
	if state.Accounts == nil {
		state.Accounts = []common.Address{}
	}
	if state.Indexes == nil {
		state.Indexes = make(map[common.Address]uint32)
	}
	if state.Paths == nil {
		state.Paths = make(map[common.Address]string)
	}
	if state.Mode == "" {
		state.Mode = KeyModeHD
	}
	if state.Account == "" {
		state.Account = AccountStandard
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	k.state = state
	return nil
}

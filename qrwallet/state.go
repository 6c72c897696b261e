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

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// stateVersion is the current version of the serialized keyring layout.
const stateVersion = 1

// DefaultPerPage is the number of addresses served per account page.
const DefaultPerPage = 5

// State is the sole persisted entity of a keyring: everything needed to
// rebuild the derivable address space, the unlocked account list and the
// pagination cursor after a restart. It round-trips through JSON unchanged.
//
// Indexes caches the derivation index per address in HD mode; Paths holds
// the device-supplied full path per address in pubkey mode. Both are
// populated lazily as addresses are produced and never evicted.
type State struct {
	XFP            string                    `json:"xfp"`
	XPub           string                    `json:"xpub"`
	HDPath         string                    `json:"hdPath"`
	ChildrenPath   string                    `json:"childrenPath"`
	Accounts       []common.Address          `json:"accounts"`
	CurrentAccount int                       `json:"currentAccount"`
	Page           int                       `json:"page"`
	PerPage        int                       `json:"perPage"`
	Indexes        map[common.Address]uint32 `json:"indexes"`
	Paths          map[common.Address]string `json:"paths"`
	Mode           KeyMode                   `json:"keyringMode"`
	Account        AccountVariant            `json:"keyringAccount"`
	Name           string                    `json:"name"`
	Initialized    bool                      `json:"initialized"`
	Version        int                       `json:"version"`
}

// newState returns an empty, uninitialized keyring state with the layout
// defaults applied.
func newState() State {
	return State{
		ChildrenPath: DefaultChildrenPath,
		Accounts:     []common.Address{},
		PerPage:      DefaultPerPage,
		Indexes:      make(map[common.Address]uint32),
		Paths:        make(map[common.Address]string),
		Mode:         KeyModeHD,
		Account:      AccountStandard,
		Version:      stateVersion,
	}
}

// fingerprint decodes the stored master fingerprint into its binary form.
func (s *State) fingerprint() ([4]byte, error) {
	var fp [4]byte
	raw, err := hex.DecodeString(s.XFP)
	if err != nil || len(raw) != len(fp) {
		return fp, fmt.Errorf("%w: malformed master fingerprint %q", ErrInvalidDeviceData, s.XFP)
	}
	copy(fp[:], raw)
	return fp, nil
}

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
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// KeyMode selects how the keyring resolves addresses.
type KeyMode string

const (
	// KeyModeHD derives addresses locally from the extended public key.
	KeyModeHD KeyMode = "hd"

	// KeyModePubkey serves the explicit, finite account list the device
	// enumerated. Nothing beyond that list can be derived locally.
	KeyModePubkey KeyMode = "pubkey"
)

// AccountVariant is an informational tag carried from the device descriptor.
// It records which path convention the device follows for display purposes
// and does not change derivation.
type AccountVariant string

const (
	AccountStandard     AccountVariant = "account.standard"
	AccountLedgerLive   AccountVariant = "account.ledger_live"
	AccountLedgerLegacy AccountVariant = "account.ledger_legacy"
)

// SignDataType tags the payload of a signing request.
type SignDataType byte

const (
	DataTypeTransaction     SignDataType = 0x01
	DataTypePersonalMessage SignDataType = 0x02
	DataTypeTypedData       SignDataType = 0x03
)

// Descriptor is a public key descriptor scanned from the device. Concrete
// variants are HDKeyDescriptor and MultiAccountDescriptor; anything else is
// rejected as unsupported.
type Descriptor interface {
	// MasterFingerprint returns the 4 byte identifier of the physical
	// signer the descriptor originates from.
	MasterFingerprint() [4]byte
}

// HDKeyDescriptor describes an extended public key exported by the device,
// from which sequential accounts are derived locally.
type HDKeyDescriptor struct {
	Fingerprint  [4]byte        // Master fingerprint of the signing device
	ExtendedKey  string         // Serialized BIP-32 extended public key
	Path         string         // Account level derivation path, e.g. m/44'/60'/0'
	ChildrenPath string         // Index template below the account path, e.g. 0/*
	Name         string         // Optional human readable device name
	Variant      AccountVariant // Optional path convention note
}

// MasterFingerprint implements Descriptor.
func (d *HDKeyDescriptor) MasterFingerprint() [4]byte { return d.Fingerprint }

// DerivedAccount is one device-enumerated account of a multi-account
// descriptor: a fully derived address with its complete path.
type DerivedAccount struct {
	Address common.Address
	Path    string
	Name    string
	Variant AccountVariant
}

// MultiAccountDescriptor describes a finite set of accounts the device
// enumerated itself, used by devices exporting non-sequential ledger-live
// style accounts.
type MultiAccountDescriptor struct {
	Fingerprint [4]byte
	Accounts    []DerivedAccount
	Device      string // Optional device model note
}

// MasterFingerprint implements Descriptor.
func (d *MultiAccountDescriptor) MasterFingerprint() [4]byte { return d.Fingerprint }

// SignRequest is the payload handed to the transport for rendering. The
// concrete wire encoding is the transport's concern; the keyring populates
// the fields verbatim.
type SignRequest struct {
	RequestID   uuid.UUID      // Fresh correlation identifier, echoed by the device
	DataType    SignDataType   // What the Data bytes are
	Data        []byte         // Transaction preimage, raw message bytes or typed data JSON
	Path        string         // Full derivation path of the signer
	Fingerprint [4]byte        // Master fingerprint of the target device
	ChainID     *big.Int       // Replay protection domain, transactions only
	Address     common.Address // Signer address, message and typed data only
}

// SignatureEnvelope is a scanned signature response. The signature is the
// raw concatenation the device produced: 32 bytes r, 32 bytes s, and one or
// more trailing v bytes. RequestID is nil when the device firmware predates
// correlation identifiers.
type SignatureEnvelope struct {
	Signature []byte
	RequestID *uuid.UUID
}

// InteractionProvider abstracts the out-of-band transport the keyring talks
// through: rendering animated codes on screen and reassembling scanned ones.
// All three calls block the calling goroutine until the user completes or
// cancels the interaction; the keyring performs at most one exchange at a
// time.
type InteractionProvider interface {
	// ReadKeyDescriptor obtains a public key descriptor from the device.
	// It returns ErrReadCanceled if the user abandons the scan.
	ReadKeyDescriptor() (Descriptor, error)

	// Play renders the signing request for the device to scan, together
	// with a human readable title and description, and returns once the
	// code was shown to completion. It returns ErrUserCanceled if the
	// user dismisses the request.
	Play(request *SignRequest, title, description string) error

	// ReadSignature obtains a signature response from the device. It
	// returns ErrReadCanceled if the user abandons the scan.
	ReadSignature() (*SignatureEnvelope, error)
}

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
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DefaultChildrenPath is assumed when the device descriptor omits the index
// template below the account path.
const DefaultChildrenPath = "0/*"

// maxScanIndex bounds the linear rederivation scan used to recover the path
// of an uncached address. The bound is part of the observable failure
// behavior: addresses beyond it resolve to ErrUnknownAddress.
const maxScanIndex = 1000

// DeriveAddress derives the address at the given index below an account
// level extended public key. Every wildcard of the children path template
// resolves to the same decimal index; the resulting components are descended
// non-hardened and the child public key is transformed into its checksummed
// address. The function is pure: identical inputs always yield the identical
// address.
func DeriveAddress(xpub, childrenPath string, index uint32) (common.Address, error) {
	key, err := hdkeychain.NewKeyFromString(xpub)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrDerivation, err)
	}
	if key.IsPrivate() {
		return common.Address{}, fmt.Errorf("%w: extended key carries private material", ErrDerivation)
	}
	components, err := resolveChildrenPath(childrenPath, index)
	if err != nil {
		return common.Address{}, err
	}
	for _, component := range components {
		if key, err = key.Derive(component); err != nil {
			return common.Address{}, fmt.Errorf("%w: %v", ErrDerivation, err)
		}
	}
	pubkey, err := key.ECPubKey()
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrDerivation, err)
	}
	return crypto.PubkeyToAddress(*pubkey.ToECDSA()), nil
}

// resolveChildrenPath substitutes the wildcards of a children path template
// with the decimal index and parses the result into its numeric components.
// Only non-hardened components are valid below an extended public key.
func resolveChildrenPath(template string, index uint32) ([]uint32, error) {
	resolved := strings.ReplaceAll(template, "*", strconv.FormatUint(uint64(index), 10))

	parts := strings.Split(resolved, "/")
	components := make([]uint32, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if strings.HasSuffix(part, "'") {
			return nil, fmt.Errorf("%w: hardened component %q in children path", ErrDerivation, part)
		}
		value, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid children path component %q", ErrDerivation, part)
		}
		if value >= hdkeychain.HardenedKeyStart {
			return nil, fmt.Errorf("%w: component %d outside non-hardened range", ErrDerivation, value)
		}
		components = append(components, uint32(value))
	}
	return components, nil
}

// ChildPath joins the account path with the resolved children template into
// the full textual derivation path of one address.
func ChildPath(hdPath, childrenPath string, index uint32) string {
	resolved := strings.ReplaceAll(childrenPath, "*", strconv.FormatUint(uint64(index), 10))
	return hdPath + "/" + resolved
}

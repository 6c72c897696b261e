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
	"bytes"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func TestDeriveAddressDeterministic(t *testing.T) {
	xpub := testExtendedKey(t)

	seen := make(map[common.Address]bool)
	for i := uint32(0); i < 8; i++ {
		first, err := DeriveAddress(xpub, "0/*", i)
		require.NoError(t, err)
		second, err := DeriveAddress(xpub, "0/*", i)
		require.NoError(t, err)

		require.Equal(t, first, second, "index %d not deterministic", i)
		require.NotEqual(t, common.Address{}, first)
		require.True(t, common.IsHexAddress(first.Hex()))
		require.False(t, seen[first], "index %d collides with an earlier index", i)
		seen[first] = true
	}
}

// TestDeriveAddressMatchesManualDescent cross-checks the template driven
// derivation against descending the extended key by hand.
func TestDeriveAddressMatchesManualDescent(t *testing.T) {
	xpub := testExtendedKey(t)

	key, err := hdkeychain.NewKeyFromString(xpub)
	require.NoError(t, err)
	change, err := key.Derive(0)
	require.NoError(t, err)
	child, err := change.Derive(3)
	require.NoError(t, err)
	pubkey, err := child.ECPubKey()
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(*pubkey.ToECDSA())

	got, err := DeriveAddress(xpub, "0/*", 3)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

// Every wildcard of a template resolves to the same index.
func TestDeriveAddressRepeatedWildcards(t *testing.T) {
	xpub := testExtendedKey(t)

	key, err := hdkeychain.NewKeyFromString(xpub)
	require.NoError(t, err)
	first, err := key.Derive(2)
	require.NoError(t, err)
	second, err := first.Derive(2)
	require.NoError(t, err)
	pubkey, err := second.ECPubKey()
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(*pubkey.ToECDSA())

	got, err := DeriveAddress(xpub, "*/*", 2)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDeriveAddressErrors(t *testing.T) {
	xpub := testExtendedKey(t)

	_, err := DeriveAddress("garbage", "0/*", 0)
	require.ErrorIs(t, err, ErrDerivation)

	_, err = DeriveAddress(xpub, "0'/*", 0)
	require.ErrorIs(t, err, ErrDerivation)

	_, err = DeriveAddress(xpub, "0/x", 0)
	require.ErrorIs(t, err, ErrDerivation)

	// Private extended keys are refused outright.
	master, err := hdkeychain.NewMaster(bytes.Repeat([]byte{0x2a}, 32), &chaincfg.MainNetParams)
	require.NoError(t, err)
	_, err = DeriveAddress(master.String(), "0/*", 0)
	require.ErrorIs(t, err, ErrDerivation)
}

func TestResolveChildrenPath(t *testing.T) {
	components, err := resolveChildrenPath("0/*", 3)
	require.NoError(t, err)
	require.Equal(t, []uint32{0, 3}, components)

	components, err = resolveChildrenPath("*/*", 7)
	require.NoError(t, err)
	require.Equal(t, []uint32{7, 7}, components)

	components, err = resolveChildrenPath("*", 0)
	require.NoError(t, err)
	require.Equal(t, []uint32{0}, components)
}

func TestChildPath(t *testing.T) {
	require.Equal(t, "m/44'/60'/0'/0/3", ChildPath("m/44'/60'/0'", "0/*", 3))
	require.Equal(t, "m/44'/60'/0'/1/0", ChildPath("m/44'/60'/0'", "1/*", 0))
}

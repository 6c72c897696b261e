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
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// signerKeyring builds a pubkey mode keyring around a freshly generated
// key, so tests can play the device side with real signatures.
func signerKeyring(t *testing.T, provider *fakeProvider) (*Keyring, *ecdsa.PrivateKey, common.Address) {
	t.Helper()

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	address := crypto.PubkeyToAddress(key.PublicKey)

	provider.descriptor = &MultiAccountDescriptor{
		Fingerprint: testFingerprint,
		Accounts:    []DerivedAccount{{Address: address, Path: "m/44'/60'/0'/0/0"}},
	}
	keyring, err := NewFromDevice(provider)
	require.NoError(t, err)
	return keyring, key, address
}

func testTx() *types.Transaction {
	return types.NewTransaction(1, common.HexToAddress("0x8888888888888888888888888888888888888888"),
		big.NewInt(1e15), 21000, big.NewInt(2e9), nil)
}

func TestSignTxRoundTrip(t *testing.T) {
	var (
		provider = &fakeProvider{echoID: true}
		chainID  = big.NewInt(1)
		tx       = testTx()
	)
	keyring, key, address := signerKeyring(t, provider)

	// Play the device: sign the EIP-155 hash and answer with the adjusted v.
	signer := types.LatestSignerForChainID(chainID)
	deviceSig, err := crypto.Sign(signer.Hash(tx).Bytes(), key)
	require.NoError(t, err)
	envelope := append([]byte{}, deviceSig[:64]...)
	envelope = append(envelope, deviceSig[64]+35+2) // v = recid + chainID*2 + 35
	provider.envelope = &SignatureEnvelope{Signature: envelope}

	signed, err := keyring.SignTx(address, tx, chainID)
	require.NoError(t, err)

	sender, err := types.Sender(signer, signed)
	require.NoError(t, err)
	require.Equal(t, address, sender)

	// The played request carried the legacy EIP-155 preimage and metadata.
	require.Len(t, provider.played, 1)
	request := provider.played[0]
	require.Equal(t, DataTypeTransaction, request.DataType)
	require.Equal(t, "m/44'/60'/0'/0/0", request.Path)
	require.Equal(t, testFingerprint, request.Fingerprint)
	require.Equal(t, chainID, request.ChainID)
	require.Equal(t, signer.Hash(tx), crypto.Keccak256Hash(request.Data))
}

func TestSignTxDynamicFee(t *testing.T) {
	var (
		provider = &fakeProvider{echoID: true}
		chainID  = big.NewInt(1)
	)
	keyring, key, address := signerKeyring(t, provider)

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     7,
		GasTipCap: big.NewInt(1e9),
		GasFeeCap: big.NewInt(3e9),
		Gas:       21000,
		To:        &common.Address{0x88},
		Value:     big.NewInt(1e15),
	})
	signer := types.LatestSignerForChainID(chainID)
	deviceSig, err := crypto.Sign(signer.Hash(tx).Bytes(), key)
	require.NoError(t, err)
	// Typed transactions answer with a plain recovery id.
	provider.envelope = &SignatureEnvelope{Signature: deviceSig}

	signed, err := keyring.SignTx(address, tx, chainID)
	require.NoError(t, err)

	sender, err := types.Sender(signer, signed)
	require.NoError(t, err)
	require.Equal(t, address, sender)

	// Type prefixed preimage hashing to the signer hash.
	request := provider.played[0]
	require.Equal(t, uint8(types.DynamicFeeTxType), request.Data[0])
	require.Equal(t, signer.Hash(tx), crypto.Keccak256Hash(request.Data))
}

func TestSignTxWrongSigner(t *testing.T) {
	var (
		provider = &fakeProvider{echoID: true}
		chainID  = big.NewInt(1)
		tx       = testTx()
	)
	keyring, _, address := signerKeyring(t, provider)

	// Answer with a signature from a different key.
	other, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := types.LatestSignerForChainID(chainID)
	deviceSig, err := crypto.Sign(signer.Hash(tx).Bytes(), other)
	require.NoError(t, err)
	envelope := append([]byte{}, deviceSig[:64]...)
	envelope = append(envelope, deviceSig[64]+35+2)
	provider.envelope = &SignatureEnvelope{Signature: envelope}

	_, err = keyring.SignTx(address, tx, chainID)
	require.ErrorContains(t, err, "signer mismatch")
}

func TestSignCorrelationMismatchThenMatch(t *testing.T) {
	provider := &fakeProvider{}
	keyring, _, address := signerKeyring(t, provider)

	var (
		r = bytes.Repeat([]byte{0x11}, 32)
		s = bytes.Repeat([]byte{0x22}, 32)
		v = []byte{27}
	)
	signature := append(append(append([]byte{}, r...), s...), v...)

	// First attempt answers with a stale request id.
	stale := uuid.New()
	provider.envelope = &SignatureEnvelope{Signature: signature, RequestID: &stale}

	_, err := keyring.SignText(address, []byte("hello"))
	require.ErrorIs(t, err, ErrCorrelationMismatch)

	// Second attempt echoes the request id and must return the exact
	// component bytes, concatenated and untouched.
	provider.echoID = true
	signed, err := keyring.SignText(address, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, signature, signed)
}

// Responses without a request id predate correlation identifiers and are
// accepted as-is. Deliberate leniency, not a missing check.
func TestSignAcceptsMissingRequestID(t *testing.T) {
	provider := &fakeProvider{}
	keyring, _, address := signerKeyring(t, provider)

	signature := append(append(append([]byte{},
		bytes.Repeat([]byte{0xaa}, 32)...),
		bytes.Repeat([]byte{0xbb}, 32)...),
		0x1c)
	provider.envelope = &SignatureEnvelope{Signature: signature}

	signed, err := keyring.SignTypedData(address, []byte(`{"types":{}}`))
	require.NoError(t, err)
	require.Equal(t, signature, signed)

	request := provider.played[len(provider.played)-1]
	require.Equal(t, DataTypeTypedData, request.DataType)
	require.Equal(t, address, request.Address)
}

func TestSignCanceledDuringPlay(t *testing.T) {
	provider := &fakeProvider{playErr: ErrUserCanceled}
	keyring, _, address := signerKeyring(t, provider)

	_, err := keyring.SignText(address, []byte("hello"))
	require.ErrorIs(t, err, ErrUserCanceled)

	// A canceled play never reaches the read phase.
	require.Zero(t, provider.sigReads)
}

func TestSignCanceledDuringRead(t *testing.T) {
	provider := &fakeProvider{sigErr: ErrReadCanceled}
	keyring, _, address := signerKeyring(t, provider)

	_, err := keyring.SignText(address, []byte("hello"))
	require.ErrorIs(t, err, ErrUserCanceled)
	require.Equal(t, 1, provider.sigReads)
}

func TestSignNotInitialized(t *testing.T) {
	keyring := New(&fakeProvider{})

	_, err := keyring.SignText(common.Address{}, []byte("hello"))
	require.ErrorIs(t, err, ErrNotInitialized)

	_, err = keyring.SignTx(common.Address{}, testTx(), big.NewInt(1))
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestSignUnknownAddress(t *testing.T) {
	provider := &fakeProvider{}
	keyring, _, _ := signerKeyring(t, provider)

	_, err := keyring.SignText(common.HexToAddress("0xdeadbeef00000000000000000000000000000000"), []byte("hello"))
	require.ErrorIs(t, err, ErrUnknownAddress)
	require.Empty(t, provider.played)
}

func TestSignShortSignatureReply(t *testing.T) {
	provider := &fakeProvider{}
	keyring, _, address := signerKeyring(t, provider)

	provider.envelope = &SignatureEnvelope{Signature: bytes.Repeat([]byte{0x01}, 64)}
	_, err := keyring.SignText(address, []byte("hello"))
	require.ErrorContains(t, err, "too short")
}

func TestTxSignatureComponents(t *testing.T) {
	var (
		r = bytes.Repeat([]byte{0x11}, 32)
		s = bytes.Repeat([]byte{0x22}, 32)
	)
	// Legacy EIP-155 v folds back to a recovery id.
	sig, err := txSignature(testTx(), big.NewInt(1), r, s, []byte{38})
	require.NoError(t, err)
	require.Equal(t, byte(1), sig[64])
	require.Equal(t, r, sig[:32])
	require.Equal(t, s, sig[32:64])

	// Historic 27/28 offset.
	sig, err = txSignature(testTx(), nil, r, s, []byte{28})
	require.NoError(t, err)
	require.Equal(t, byte(1), sig[64])

	// Plain recovery id passes through.
	sig, err = txSignature(testTx(), nil, r, s, []byte{0})
	require.NoError(t, err)
	require.Equal(t, byte(0), sig[64])

	// Nonsense v values are refused.
	_, err = txSignature(testTx(), big.NewInt(1), r, s, []byte{99})
	require.Error(t, err)
	_, err = txSignature(testTx(), big.NewInt(1), r[:31], s, []byte{38})
	require.Error(t, err)
}

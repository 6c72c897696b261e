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
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/google/uuid"
)

// signRequestTitle is shown alongside every rendered signing request.
const signRequestTitle = "Scan with your signing device"

// SignTx plays a signing request for the transaction over the QR transport
// and reassembles the scanned signature into the signed transaction. A nil
// chain id requests pre-EIP-155 signing.
func (k *Keyring) SignTx(address common.Address, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.state.Initialized {
		return nil, ErrNotInitialized
	}
	path, err := k.pathForAddress(address)
	if err != nil {
		return nil, err
	}
	fingerprint, err := k.state.fingerprint()
	if err != nil {
		return nil, err
	}
	preimage, err := txPreimage(tx, chainID)
	if err != nil {
		return nil, err
	}
	request := &SignRequest{
		RequestID:   uuid.New(),
		DataType:    DataTypeTransaction,
		Data:        preimage,
		Path:        path,
		Fingerprint: fingerprint,
		ChainID:     chainID,
	}
	r, s, v, err := k.exchange(request, signRequestTitle,
		"Review the transaction on the device, sign it and scan the resulting code")
	if err != nil {
		return nil, err
	}
	signature, err := txSignature(tx, chainID, r, s, v)
	if err != nil {
		return nil, err
	}
	var signer types.Signer
	if chainID == nil {
		signer = new(types.HomesteadSigner)
	} else {
		signer = types.LatestSignerForChainID(chainID)
	}
	signed, err := tx.WithSignature(signer, signature)
	if err != nil {
		return nil, err
	}
	// Verify the recovered sender to catch device faults early.
	sender, err := types.Sender(signer, signed)
	if err != nil {
		return nil, err
	}
	if sender != address {
		return nil, fmt.Errorf("signer mismatch: expected %s, got %s", address.Hex(), sender.Hex())
	}
	return signed, nil
}

// SignText plays a personal message signing request and returns the raw
// r || s || v signature bytes. The device applies the personal message
// prefix itself, so the payload carries the message verbatim.
func (k *Keyring) SignText(address common.Address, text []byte) ([]byte, error) {
	return k.signRaw(address, DataTypePersonalMessage, text,
		"Review the message on the device, sign it and scan the resulting code")
}

// SignTypedData plays a typed data signing request for the UTF-8 JSON
// encoding of the structure and returns the raw r || s || v signature
// bytes.
func (k *Keyring) SignTypedData(address common.Address, data []byte) ([]byte, error) {
	return k.signRaw(address, DataTypeTypedData, data,
		"Review the typed data on the device, sign it and scan the resulting code")
}

// signRaw is the shared message/typed-data path: build the request, run the
// exchange and glue the components back together untouched.
func (k *Keyring) signRaw(address common.Address, dataType SignDataType, data []byte, description string) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.state.Initialized {
		return nil, ErrNotInitialized
	}
	path, err := k.pathForAddress(address)
	if err != nil {
		return nil, err
	}
	fingerprint, err := k.state.fingerprint()
	if err != nil {
		return nil, err
	}
	request := &SignRequest{
		RequestID:   uuid.New(),
		DataType:    dataType,
		Data:        data,
		Path:        path,
		Fingerprint: fingerprint,
		Address:     address,
	}
	r, s, v, err := k.exchange(request, signRequestTitle, description)
	if err != nil {
		return nil, err
	}
	signature := make([]byte, 0, len(r)+len(s)+len(v))
	signature = append(signature, r...)
	signature = append(signature, s...)
	signature = append(signature, v...)
	return signature, nil
}

// exchange drives one request/response cycle over the QR transport: play
// the request, block for the scanned response and validate that the
// response correlates to this request. A response without a request id is
// accepted as-is; older device firmware omits the field, and tightening
// that would reject otherwise valid signatures.
func (k *Keyring) exchange(request *SignRequest, title, description string) (r, s, v []byte, err error) {
	k.log.Debug("Playing signing request", "id", request.RequestID, "type", request.DataType, "path", request.Path)

	if err := k.provider.Play(request, title, description); err != nil {
		if errors.Is(err, ErrUserCanceled) || errors.Is(err, ErrReadCanceled) {
			return nil, nil, nil, ErrUserCanceled
		}
		return nil, nil, nil, err
	}
	envelope, err := k.provider.ReadSignature()
	if err != nil {
		if errors.Is(err, ErrReadCanceled) {
			return nil, nil, nil, ErrUserCanceled
		}
		return nil, nil, nil, err
	}
	if envelope.RequestID != nil && *envelope.RequestID != request.RequestID {
		return nil, nil, nil, fmt.Errorf("%w: sent %s, got %s", ErrCorrelationMismatch, request.RequestID, envelope.RequestID)
	}
	if len(envelope.Signature) < crypto.SignatureLength {
		return nil, nil, nil, fmt.Errorf("signature reply too short: %d bytes", len(envelope.Signature))
	}
	signature := envelope.Signature
	return signature[:32], signature[32:64], signature[64:], nil
}

// txPreimage serializes the transaction for external signing. Legacy
// transactions carry the chain id in the would-be v position with zeroed
// signature fields per EIP-155, so the produced signature folds back into a
// replay protected transaction; typed transactions are serialized with
// their type prefix.
func txPreimage(tx *types.Transaction, chainID *big.Int) ([]byte, error) {
	if chainID == nil {
		return rlp.EncodeToBytes([]interface{}{tx.Nonce(), tx.GasPrice(), tx.Gas(), tx.To(), tx.Value(), tx.Data()})
	}
	switch tx.Type() {
	case types.DynamicFeeTxType:
		preimage, err := rlp.EncodeToBytes([]interface{}{chainID, tx.Nonce(), tx.GasTipCap(), tx.GasFeeCap(), tx.Gas(), tx.To(), tx.Value(), tx.Data(), tx.AccessList()})
		if err != nil {
			return nil, err
		}
		return append([]byte{tx.Type()}, preimage...), nil
	case types.AccessListTxType:
		preimage, err := rlp.EncodeToBytes([]interface{}{chainID, tx.Nonce(), tx.GasPrice(), tx.Gas(), tx.To(), tx.Value(), tx.Data(), tx.AccessList()})
		if err != nil {
			return nil, err
		}
		return append([]byte{tx.Type()}, preimage...), nil
	case types.LegacyTxType:
		return rlp.EncodeToBytes([]interface{}{tx.Nonce(), tx.GasPrice(), tx.Gas(), tx.To(), tx.Value(), tx.Data(), chainID, big.NewInt(0), big.NewInt(0)})
	default:
		return nil, fmt.Errorf("unsupported transaction type %d", tx.Type())
	}
}

// txSignature folds the device signature components back into the 65 byte
// r || s || recovery-id form the chain library expects. Legacy signatures
// arrive with the EIP-155 adjusted v, typed ones with a plain recovery id
// or the historic 27/28 offset.
func txSignature(tx *types.Transaction, chainID *big.Int, r, s, v []byte) ([]byte, error) {
	if len(r) != 32 || len(s) != 32 {
		return nil, fmt.Errorf("invalid signature component lengths: r %d, s %d", len(r), len(s))
	}
	recid := new(big.Int).SetBytes(v)
	switch {
	case chainID != nil && tx.Type() == types.LegacyTxType && recid.Cmp(big.NewInt(35)) >= 0:
		recid.Sub(recid, new(big.Int).Add(new(big.Int).Mul(chainID, big.NewInt(2)), big.NewInt(35)))
	case recid.Cmp(big.NewInt(27)) >= 0:
		recid.Sub(recid, big.NewInt(27))
	}
	if recid.Sign() < 0 || recid.Cmp(big.NewInt(1)) > 0 {
		return nil, fmt.Errorf("invalid recovery id %v for chain %v", recid, chainID)
	}
	signature := make([]byte, crypto.SignatureLength)
	copy(signature[:32], r)
	copy(signature[32:64], s)
	signature[64] = byte(recid.Uint64())
	return signature, nil
}

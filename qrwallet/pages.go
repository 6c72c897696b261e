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
	"math/big"
	"slices"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
)

// PagedAccount is one entry of an account page. Balance is left unset for
// the caller to fill in; the keyring has no chain access.
type PagedAccount struct {
	Address common.Address `json:"address"`
	Balance *big.Int       `json:"balance"`
	Index   int            `json:"index"`
}

// FirstPage serves the first page of the address space, resetting the
// cursor to page one regardless of any prior paging.
func (k *Keyring) FirstPage() ([]PagedAccount, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.state.Page = 0
	return k.page(1)
}

// NextPage advances the cursor and serves the resulting page.
func (k *Keyring) NextPage() ([]PagedAccount, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.page(1)
}

// PreviousPage retreats the cursor and serves the resulting page. In HD
// mode the cursor is floored at page one; in pubkey mode it is allowed to
// retreat past it, page zero being a legitimate empty window over the
// enumerated accounts.
func (k *Keyring) PreviousPage() ([]PagedAccount, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.page(-1)
}

// page moves the cursor by increment and serves the resulting window,
// reading the keyring from the device first if it was never initialized.
// Callers hold k.mu.
func (k *Keyring) page(increment int) ([]PagedAccount, error) {
	if !k.state.Initialized {
		if _, err := k.readKeyring(); err != nil {
			return nil, err
		}
	}
	if k.state.Mode == KeyModePubkey {
		return k.enumeratedPage(increment)
	}
	return k.derivedPage(increment)
}

// derivedPage pages over the locally derivable address space: page p covers
// the indexes [(p-1)*perPage, p*perPage). Every derived address is written
// into the index cache; rederiving an already seen index overwrites the
// entry with the same value.
func (k *Keyring) derivedPage(increment int) ([]PagedAccount, error) {
	page := k.state.Page + increment
	if page < 1 {
		page = 1
	}
	from := (page - 1) * k.state.PerPage

	entries := make([]PagedAccount, 0, k.state.PerPage)
	for i := from; i < from+k.state.PerPage; i++ {
		address, err := DeriveAddress(k.state.XPub, k.state.ChildrenPath, uint32(i))
		if err != nil {
			return nil, err
		}
		entries = append(entries, PagedAccount{Address: address, Index: i})
	}
	// Commit cursor and cache only once the whole page derived.
	for _, entry := range entries {
		k.state.Indexes[entry.Address] = uint32(entry.Index)
	}
	k.state.Page = page
	return entries, nil
}

// enumeratedPage pages over the device-supplied path table. The cursor is
// deliberately not floored: enumerated accounts are not a contiguous
// derivable range, so retreating to page zero yields an empty window rather
// than rebasing to page one the way HD mode does.
func (k *Keyring) enumeratedPage(increment int) ([]PagedAccount, error) {
	k.state.Page += increment

	all := k.enumeratedAccounts()
	from := (k.state.Page - 1) * k.state.PerPage
	to := from + k.state.PerPage
	if from < 0 || from >= len(all) {
		return []PagedAccount{}, nil
	}
	if to > len(all) {
		to = len(all)
	}
	entries := make([]PagedAccount, 0, to-from)
	for i := from; i < to; i++ {
		entries = append(entries, PagedAccount{Address: all[i].address, Index: i})
	}
	return entries, nil
}

// pathEntry pairs a device-enumerated address with its full path.
type pathEntry struct {
	address common.Address
	path    string
}

// enumeratedAccounts returns the device-supplied accounts ordered by their
// derivation paths. Map iteration order is not stable across restarts, the
// path components are.
func (k *Keyring) enumeratedAccounts() []pathEntry {
	entries := make([]pathEntry, 0, len(k.state.Paths))
	for address, path := range k.state.Paths {
		entries = append(entries, pathEntry{address: address, path: path})
	}
	slices.SortFunc(entries, func(a, b pathEntry) int {
		return comparePaths(a.path, b.path)
	})
	return entries
}

// comparePaths orders derivation paths component-wise and numerically, so
// m/44'/60'/2' sorts before m/44'/60'/10'. Unparseable paths fall back to
// string order.
func comparePaths(a, b string) int {
	pa, errA := accounts.ParseDerivationPath(a)
	pb, errB := accounts.ParseDerivationPath(b)
	if errA != nil || errB != nil {
		return strings.Compare(a, b)
	}
	for i := 0; i < len(pa) && i < len(pb); i++ {
		if pa[i] != pb[i] {
			if pa[i] < pb[i] {
				return -1
			}
			return 1
		}
	}
	return len(pa) - len(pb)
}

// AddAccounts unlocks the next count addresses and appends them to the
// account list: in HD mode by deriving sequentially past the already
// unlocked range, in pubkey mode by taking the next device-enumerated
// entries. Nothing is appended on failure, and pagination is reset.
func (k *Keyring) AddAccounts(count int) ([]common.Address, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.state.Initialized {
		if _, err := k.readKeyring(); err != nil {
			return nil, err
		}
	}
	var fresh []common.Address
	if k.state.Mode == KeyModePubkey {
		for _, entry := range k.enumeratedAccounts() {
			if len(fresh) == count {
				break
			}
			if k.unlocked(entry.address) {
				continue
			}
			fresh = append(fresh, entry.address)
		}
		if len(fresh) < count {
			return nil, fmt.Errorf("%w: device enumerated only %d further accounts", ErrUnknownAddress, len(fresh))
		}
	} else {
		from := len(k.state.Accounts)
		for i := 0; i < count; i++ {
			address, err := DeriveAddress(k.state.XPub, k.state.ChildrenPath, uint32(from+i))
			if err != nil {
				return nil, err
			}
			fresh = append(fresh, address)
		}
		for i, address := range fresh {
			k.state.Indexes[address] = uint32(from + i)
		}
	}
	for _, address := range fresh {
		if !k.unlocked(address) {
			k.state.Accounts = append(k.state.Accounts, address)
		}
	}
	k.state.Page = 0

	k.log.Debug("Unlocked keyring accounts", "count", len(fresh), "total", len(k.state.Accounts))
	return fresh, nil
}

// unlocked reports whether the address is already a member of the account
// list. Callers hold k.mu.
func (k *Keyring) unlocked(address common.Address) bool {
	return slices.Contains(k.state.Accounts, address)
}

// PathForAddress resolves an address back to its full derivation path.
func (k *Keyring) PathForAddress(address common.Address) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	return k.pathForAddress(address)
}

// pathForAddress is the internal reverse lookup. In HD mode a cache miss
// falls back to a bounded linear rederivation scan; in pubkey mode only the
// device-supplied table can answer. Callers hold k.mu.
func (k *Keyring) pathForAddress(address common.Address) (string, error) {
	if !k.state.Initialized {
		return "", ErrNotInitialized
	}
	if k.state.Mode == KeyModePubkey {
		path, ok := k.state.Paths[address]
		if !ok {
			return "", fmt.Errorf("%w: %s not among device-enumerated accounts", ErrUnknownAddress, address.Hex())
		}
		return path, nil
	}
	if index, ok := k.state.Indexes[address]; ok {
		return ChildPath(k.state.HDPath, k.state.ChildrenPath, index), nil
	}
	for i := uint32(0); i < maxScanIndex; i++ {
		derived, err := DeriveAddress(k.state.XPub, k.state.ChildrenPath, i)
		if err != nil {
			return "", err
		}
		if derived == address {
			k.state.Indexes[address] = i
			return ChildPath(k.state.HDPath, k.state.ChildrenPath, i), nil
		}
	}
	return "", fmt.Errorf("%w: %s not within the first %d derivation indexes", ErrUnknownAddress, address.Hex(), maxScanIndex)
}

// Copyright 2026 The go-airgap-keyring Authors
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

// qrwallet is a small offline companion for the air-gapped keyring: it can
// derive addresses from an exported extended public key and inspect
// persisted keyring records, all without touching a device or the network.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/qrwallet/go-airgap-keyring/qrwallet"
	"github.com/qrwallet/go-airgap-keyring/store"
)

var (
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
	xpubFlag = &cli.StringFlag{
		Name:     "xpub",
		Usage:    "Account level extended public key exported by the device",
		Required: true,
	}
	hdPathFlag = &cli.StringFlag{
		Name:  "hd-path",
		Usage: "Account level derivation path the key was exported at",
		Value: "m/44'/60'/0'",
	}
	childrenPathFlag = &cli.StringFlag{
		Name:  "children-path",
		Usage: "Index template below the account path",
		Value: qrwallet.DefaultChildrenPath,
	}
	countFlag = &cli.IntFlag{
		Name:  "count",
		Usage: "Number of addresses to derive",
		Value: qrwallet.DefaultPerPage,
	}
	offsetFlag = &cli.IntFlag{
		Name:  "offset",
		Usage: "Derivation index to start from",
		Value: 0,
	}
	dbFlag = &cli.StringFlag{
		Name:  "db",
		Usage: "Path of the keyring record store",
		Value: "qrwallet.db",
	}
	nameFlag = &cli.StringFlag{
		Name:  "name",
		Usage: "Name of the stored keyring record",
		Value: "default",
	}
)

func main() {
	app := &cli.App{
		Name:  "qrwallet",
		Usage: "offline utilities for the air-gapped QR keyring",
		Flags: []cli.Flag{verbosityFlag},
		Before: func(c *cli.Context) error {
			handler := log.NewTerminalHandlerWithLevel(os.Stderr, log.FromLegacyLevel(c.Int(verbosityFlag.Name)), false)
			log.SetDefault(log.NewLogger(handler))
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "derive",
				Usage:  "derive addresses from an exported extended public key",
				Flags:  []cli.Flag{xpubFlag, hdPathFlag, childrenPathFlag, countFlag, offsetFlag},
				Action: deriveAddresses,
			},
			{
				Name:   "show",
				Usage:  "print a persisted keyring record",
				Flags:  []cli.Flag{dbFlag, nameFlag},
				Action: showKeyring,
			},
			{
				Name:   "list",
				Usage:  "list persisted keyring records",
				Flags:  []cli.Flag{dbFlag},
				Action: listKeyrings,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func deriveAddresses(c *cli.Context) error {
	var (
		xpub     = c.String(xpubFlag.Name)
		hdPath   = c.String(hdPathFlag.Name)
		children = c.String(childrenPathFlag.Name)
		offset   = c.Int(offsetFlag.Name)
	)
	for i := offset; i < offset+c.Int(countFlag.Name); i++ {
		address, err := qrwallet.DeriveAddress(xpub, children, uint32(i))
		if err != nil {
			return err
		}
		fmt.Printf("%4d  %s  %s\n", i, address.Hex(), qrwallet.ChildPath(hdPath, children, uint32(i)))
	}
	return nil
}

func showKeyring(c *cli.Context) error {
	db, err := store.Open(c.String(dbFlag.Name))
	if err != nil {
		return err
	}
	defer db.Close()

	blob, err := db.Get(c.String(nameFlag.Name))
	if err != nil {
		return err
	}
	var state qrwallet.State
	if err := json.Unmarshal(blob, &state); err != nil {
		return fmt.Errorf("decoding keyring record: %w", err)
	}
	fmt.Printf("Fingerprint:   %s\n", state.XFP)
	fmt.Printf("Mode:          %s (%s)\n", state.Mode, state.Account)
	fmt.Printf("HD path:       %s/%s\n", state.HDPath, state.ChildrenPath)
	fmt.Printf("Initialized:   %v\n", state.Initialized)
	fmt.Printf("Accounts (%d):\n", len(state.Accounts))
	for i, account := range state.Accounts {
		marker := " "
		if i == state.CurrentAccount {
			marker = "*"
		}
		fmt.Printf("  %s %s\n", marker, account.Hex())
	}
	return nil
}

func listKeyrings(c *cli.Context) error {
	db, err := store.Open(c.String(dbFlag.Name))
	if err != nil {
		return err
	}
	defer db.Close()

	names, err := db.List()
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

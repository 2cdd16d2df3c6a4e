// Copyright (c) 2025 The btconsensus developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package deps bundles the dependencies an embedder injects into the
// consensus core: the crypto backend, the storage engine's chosen
// location, and a logger. None of this is consulted by the core
// itself, which only ever takes the narrower interfaces (crypto.Provider,
// btclog.Logger) it actually calls through; deps exists so an embedder
// assembling a Processor has one place to wire all three.
package deps

import (
	"github.com/btcsuite/btclog"
	"github.com/coreledger/btconsensus/chaincfg"
	"github.com/coreledger/btconsensus/consensus"
	"github.com/coreledger/btconsensus/crypto"
	"github.com/coreledger/btconsensus/storage"
)

// Dependencies collects what NewProcessor needs to build a
// consensus.Processor: where to open the chain database, which network
// parameters govern it, which crypto backend to verify signatures with,
// and which logger every package that logs should write through.
type Dependencies struct {
	StorePath string
	Params    *chaincfg.Params
	Crypto    crypto.Provider
	Logger    btclog.Logger
}

// NewProcessor opens the store at d.StorePath, wires d.Logger into
// every package that logs, and returns a ready consensus.Processor. A
// nil Crypto defaults to crypto.Default{}; a nil Logger leaves each
// package's logger at whatever UseLogger last set (btclog.Disabled by
// default).
func NewProcessor(d Dependencies) (*consensus.Processor, *storage.Store, error) {
	if d.Crypto == nil {
		d.Crypto = crypto.Default{}
	}
	if d.Logger != nil {
		UseLogger(d.Logger)
	}

	store, err := storage.Open(d.StorePath)
	if err != nil {
		return nil, nil, err
	}

	p, err := consensus.NewProcessor(store, d.Params, d.Crypto)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return p, store, nil
}

// UseLogger directs every package in this module that logs (consensus
// and storage) to write through logger, via each package's own
// UseLogger(btclog.Logger).
func UseLogger(logger btclog.Logger) {
	consensus.UseLogger(logger)
	storage.UseLogger(logger)
}

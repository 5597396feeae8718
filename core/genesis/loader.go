package genesis

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"rbtchain/core/state"
	"rbtchain/core/types"
)

var genesisMarkerKey = []byte("genesis")

// Marker is persisted once genesis has been applied.
type Marker struct {
	ChainID   string
	Program   [20]byte
	Timestamp uint64
}

// ReadMarker returns the marker written by Apply, if any.
func ReadMarker(mgr *state.Manager) (*Marker, bool, error) {
	if mgr == nil {
		return nil, false, fmt.Errorf("state manager must not be nil")
	}
	txn := mgr.View()
	defer txn.Discard()

	var m Marker
	found, err := txn.KVGet(genesisMarkerKey, &m)
	if err != nil {
		return nil, false, fmt.Errorf("load genesis marker: %w", err)
	}
	if !found {
		return nil, false, nil
	}
	return &m, true, nil
}

// Apply writes the genesis allocations in a single transaction. It reports
// false when the database already holds a genesis for the same chain and
// fails when it holds a different one.
func Apply(spec *Spec, mgr *state.Manager) (bool, error) {
	if spec == nil {
		return false, fmt.Errorf("genesis spec must not be nil")
	}
	if mgr == nil {
		return false, fmt.Errorf("state manager must not be nil")
	}
	txn := mgr.Begin()
	defer txn.Discard()

	var existing Marker
	found, err := txn.KVGet(genesisMarkerKey, &existing)
	if err != nil {
		return false, fmt.Errorf("load genesis marker: %w", err)
	}
	if found {
		if existing.ChainID != spec.ChainID || existing.Program != spec.ProgramID() {
			return false, fmt.Errorf("database initialised for chain %q, genesis describes %q", existing.ChainID, spec.ChainID)
		}
		return false, nil
	}

	addrs := make([][20]byte, 0, len(spec.balances))
	for addr := range spec.balances {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i][:], addrs[j][:]) < 0 })
	for _, addr := range addrs {
		account := &types.Account{Balance: new(big.Int).Set(spec.balances[addr])}
		if err := txn.PutAccount(addr[:], account); err != nil {
			return false, fmt.Errorf("alloc %x: %w", addr, err)
		}
	}

	ts := spec.GenesisTimestamp().Unix()
	if ts < 0 {
		ts = 0
	}
	if err := txn.KVPut(genesisMarkerKey, Marker{ChainID: spec.ChainID, Program: spec.ProgramID(), Timestamp: uint64(ts)}); err != nil {
		return false, err
	}
	if err := txn.Commit(); err != nil {
		return false, fmt.Errorf("commit genesis: %w", err)
	}
	return true, nil
}

package state

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"rbtchain/core/types"
	"rbtchain/storage"
)

var (
	ErrAccountExists        = errors.New("state: account already in use")
	ErrAccountNotFound      = errors.New("state: account not found")
	ErrAccountSpaceExceeded = errors.New("state: account data exceeds allocated space")
	ErrInsufficientFunds    = errors.New("state: insufficient funds")
	ErrInvalidAmount        = errors.New("state: amount must not be negative")
	ErrReadOnly             = errors.New("state: read-only view")
	ErrTxnClosed            = errors.New("state: transaction already closed")
)

// storedAccount is the persisted envelope of a program owned account.
type storedAccount struct {
	Owner [20]byte
	Space uint64
	Data  []byte
}

// Manager owns the key-value database and hands out transactions. At most one
// writable transaction is open at a time, so transitions that read and bump a
// shared counter cannot interleave.
type Manager struct {
	db storage.Database
	mu sync.Mutex
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// Begin opens a writable transaction. It blocks until the previous one is
// committed or discarded.
func (m *Manager) Begin() *Txn {
	m.mu.Lock()
	return &Txn{m: m, overlay: make(map[string][]byte)}
}

// View opens a read-only transaction over committed state.
func (m *Manager) View() *Txn {
	return &Txn{m: m, overlay: make(map[string][]byte), readOnly: true}
}

// Txn buffers writes until Commit. Reads observe the transaction's own writes.
type Txn struct {
	m        *Manager
	overlay  map[string][]byte
	readOnly bool
	closed   bool
}

func hashedKey(prefix, key []byte) []byte {
	buf := make([]byte, 0, len(prefix)+len(key))
	buf = append(buf, prefix...)
	buf = append(buf, key...)
	return ethcrypto.Keccak256(buf)
}

func (t *Txn) get(key []byte) ([]byte, bool, error) {
	if t.closed {
		return nil, false, ErrTxnClosed
	}
	if value, ok := t.overlay[string(key)]; ok {
		return value, true, nil
	}
	value, err := t.m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (t *Txn) put(key, value []byte) error {
	if t.closed {
		return ErrTxnClosed
	}
	if t.readOnly {
		return ErrReadOnly
	}
	t.overlay[string(key)] = append([]byte(nil), value...)
	return nil
}

// CreateAccount allocates a program owned account. An address can be created
// once; a second attempt fails with ErrAccountExists.
func (t *Txn) CreateAccount(addr, owner [20]byte, space int, data []byte) error {
	if space < 0 || len(data) > space {
		return fmt.Errorf("create %x: %w", addr, ErrAccountSpaceExceeded)
	}
	key := hashedKey(accountDataPrefix, addr[:])
	if _, ok, err := t.get(key); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("create %x: %w", addr, ErrAccountExists)
	}
	encoded, err := rlp.EncodeToBytes(storedAccount{Owner: owner, Space: uint64(space), Data: data})
	if err != nil {
		return err
	}
	return t.put(key, encoded)
}

func (t *Txn) loadStored(addr [20]byte) (*storedAccount, error) {
	raw, ok, err := t.get(hashedKey(accountDataPrefix, addr[:]))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	stored := new(storedAccount)
	if err := rlp.DecodeBytes(raw, stored); err != nil {
		return nil, fmt.Errorf("decode account %x: %w", addr, err)
	}
	return stored, nil
}

// AccountData returns the owning program and raw data of an account.
func (t *Txn) AccountData(addr [20]byte) ([20]byte, []byte, bool, error) {
	stored, err := t.loadStored(addr)
	if err != nil || stored == nil {
		return [20]byte{}, nil, false, err
	}
	return stored.Owner, stored.Data, true, nil
}

// SetAccountData replaces the data of an existing account. The new data must
// fit in the space reserved at creation.
func (t *Txn) SetAccountData(addr [20]byte, data []byte) error {
	stored, err := t.loadStored(addr)
	if err != nil {
		return err
	}
	if stored == nil {
		return fmt.Errorf("update %x: %w", addr, ErrAccountNotFound)
	}
	if uint64(len(data)) > stored.Space {
		return fmt.Errorf("update %x: %w", addr, ErrAccountSpaceExceeded)
	}
	stored.Data = data
	encoded, err := rlp.EncodeToBytes(stored)
	if err != nil {
		return err
	}
	return t.put(hashedKey(accountDataPrefix, addr[:]), encoded)
}

// GetAccount returns the balance account for addr, zero valued when absent.
func (t *Txn) GetAccount(addr []byte) (*types.Account, error) {
	raw, ok, err := t.get(hashedKey(accountPrefix, addr))
	if err != nil {
		return nil, err
	}
	if !ok {
		return &types.Account{Balance: big.NewInt(0)}, nil
	}
	acc := new(types.Account)
	if err := rlp.DecodeBytes(raw, acc); err != nil {
		return nil, fmt.Errorf("decode balance %x: %w", addr, err)
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc, nil
}

func (t *Txn) PutAccount(addr []byte, account *types.Account) error {
	if account == nil {
		account = &types.Account{}
	}
	if account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
	if account.Balance.Sign() < 0 {
		return ErrInvalidAmount
	}
	encoded, err := rlp.EncodeToBytes(account)
	if err != nil {
		return err
	}
	return t.put(hashedKey(accountPrefix, addr), encoded)
}

// Transfer moves value between balance accounts.
func (t *Txn) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	src, err := t.GetAccount(from[:])
	if err != nil {
		return err
	}
	if src.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("transfer %s from %x: %w", amount, from, ErrInsufficientFunds)
	}
	src.Balance = new(big.Int).Sub(src.Balance, amount)
	if err := t.PutAccount(from[:], src); err != nil {
		return err
	}
	dst, err := t.GetAccount(to[:])
	if err != nil {
		return err
	}
	dst.Balance = new(big.Int).Add(dst.Balance, amount)
	return t.PutAccount(to[:], dst)
}

// KVPut stores an RLP encoded value under a hashed free-form key.
func (t *Txn) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return t.put(hashedKey(kvPrefix, key), encoded)
}

// KVGet decodes the value stored under key into out and reports whether the
// key existed.
func (t *Txn) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	raw, ok, err := t.get(hashedKey(kvPrefix, key))
	if err != nil || !ok {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(raw, out); err != nil {
		return false, err
	}
	return true, nil
}

// Commit writes every buffered change in one atomic batch and releases the
// manager.
func (t *Txn) Commit() error {
	if t.closed {
		return ErrTxnClosed
	}
	t.closed = true
	if t.readOnly {
		return nil
	}
	defer t.m.mu.Unlock()

	keys := make([]string, 0, len(t.overlay))
	for k := range t.overlay {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	batch := storage.NewBatch()
	for _, k := range keys {
		batch.Put([]byte(k), t.overlay[k])
	}
	t.overlay = nil
	return t.m.db.Write(batch)
}

// Discard drops buffered changes. It is safe to call after Commit.
func (t *Txn) Discard() {
	if t.closed {
		return
	}
	t.closed = true
	t.overlay = nil
	if !t.readOnly {
		t.m.mu.Unlock()
	}
}

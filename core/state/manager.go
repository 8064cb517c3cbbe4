package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"bondchain/storage"
)

var errNilDatabase = errors.New("state: database not configured")

// Manager exposes the namespaced key-value operations the native modules
// persist through. Values are RLP encoded; list keys hold an RLP encoded
// [][]byte that supports cheap appends.
type Manager struct {
	mu sync.Mutex
	db storage.Database
}

// NewManager binds a state manager to the supplied database backend.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed; a missing key is not an error.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if m == nil || m.db == nil {
		return false, errNilDatabase
	}
	encoded, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return true, nil
}

// KVPut RLP encodes value and stores it under key, replacing any previous
// value.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return fmt.Errorf("state: encode %q: %w", key, err)
	}
	return m.db.Put(key, encoded)
}

// KVAppend appends the raw value to the list stored under key.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var list [][]byte
	encoded, err := m.db.Get(key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if len(encoded) > 0 {
		if err := rlp.DecodeBytes(encoded, &list); err != nil {
			return fmt.Errorf("state: decode list %q: %w", key, err)
		}
	}
	list = append(list, append([]byte(nil), value...))
	reencoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return m.db.Put(key, reencoded)
}

// KVGetList decodes the list stored under key into out. A missing key yields
// an empty list.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if m == nil || m.db == nil {
		return errNilDatabase
	}
	encoded, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		encoded, err = rlp.EncodeToBytes([][]byte{})
		if err != nil {
			return err
		}
	} else if err != nil {
		return err
	}
	if err := rlp.DecodeBytes(encoded, out); err != nil {
		return fmt.Errorf("state: decode list %q: %w", key, err)
	}
	return nil
}

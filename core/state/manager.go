package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"farmstake/storage"
)

// Manager is a journaled key/value view over a storage backend. Writes stay
// in memory until Commit and can be rolled back to any snapshot taken since
// the last commit.
type Manager struct {
	mu        sync.RWMutex
	db        storage.Database
	dirty     map[string]dirtyValue
	journal   []journalEntry
	revisions []int
}

type dirtyValue struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    dirtyValue
	hadPrev bool
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, dirty: make(map[string]dirtyValue)}
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

func (m *Manager) read(hashed []byte) ([]byte, error) {
	m.mu.RLock()
	val, ok := m.dirty[string(hashed)]
	m.mu.RUnlock()
	if ok {
		if val.deleted {
			return nil, nil
		}
		return val.value, nil
	}
	data, err := m.db.Get(hashed)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (m *Manager) write(hashed []byte, value []byte, deleted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(hashed)
	prev, had := m.dirty[key]
	m.journal = append(m.journal, journalEntry{key: key, prev: prev, hadPrev: had})
	m.dirty[key] = dirtyValue{value: append([]byte(nil), value...), deleted: deleted}
}

// Snapshot marks the current journal position and returns its identifier.
func (m *Manager) Snapshot() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revisions = append(m.revisions, len(m.journal))
	return len(m.revisions) - 1
}

// RevertToSnapshot undoes every write made after the snapshot was taken.
// Snapshots taken after id are invalidated. Unknown ids are ignored.
func (m *Manager) RevertToSnapshot(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id < 0 || id >= len(m.revisions) {
		return
	}
	target := m.revisions[id]
	for i := len(m.journal) - 1; i >= target; i-- {
		entry := m.journal[i]
		if entry.hadPrev {
			m.dirty[entry.key] = entry.prev
		} else {
			delete(m.dirty, entry.key)
		}
	}
	m.journal = m.journal[:target]
	m.revisions = m.revisions[:id]
}

// Dirty reports the number of keys modified since the last commit.
func (m *Manager) Dirty() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.dirty)
}

// Commit writes every pending change to the backend in a single batch and
// clears the journal.
func (m *Manager) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.dirty) == 0 {
		m.journal, m.revisions = nil, nil
		return nil
	}
	keys := make([]string, 0, len(m.dirty))
	for key := range m.dirty {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	batch := storage.NewBatch()
	for _, key := range keys {
		val := m.dirty[key]
		if val.deleted {
			batch.Delete([]byte(key))
			continue
		}
		batch.Put([]byte(key), val.value)
	}
	if err := m.db.Write(batch); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	m.dirty = make(map[string]dirtyValue)
	m.journal, m.revisions = nil, nil
	return nil
}

// Discard drops every pending change.
func (m *Manager) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirty = make(map[string]dirtyValue)
	m.journal, m.revisions = nil, nil
}

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before it reaches the backend.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.write(kvKey(key), encoded, false)
	return nil
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.read(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVDelete removes the value stored under key.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	m.write(kvKey(key), nil, true)
	return nil
}

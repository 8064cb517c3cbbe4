package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	errInvalidClass     = errors.New("position registry: invalid position class")
	errPositionNotFound = errors.New("position registry: position not found")
	errNotPositionOwner = errors.New("position registry: caller does not own position")
	errPositionExists   = errors.New("position registry: position already minted")
)

var positionPrefix = []byte("token/position/")

// Registry tracks ownership of tokenized positions keyed by (class, id). It
// backs the tokenized-position capability used to escrow auction products.
type Registry struct {
	store Storage
}

// NewRegistry constructs a position registry bound to the provided storage
// backend.
func NewRegistry(store Storage) *Registry {
	return &Registry{store: store}
}

func normalizeClass(class string) (string, error) {
	trimmed := strings.TrimSpace(class)
	if trimmed == "" || strings.ContainsRune(trimmed, '/') {
		return "", errInvalidClass
	}
	return trimmed, nil
}

func positionKey(class string, id uint64) []byte {
	encoded := strconv.FormatUint(id, 10)
	buf := make([]byte, 0, len(positionPrefix)+len(class)+1+len(encoded))
	buf = append(buf, positionPrefix...)
	buf = append(buf, class...)
	buf = append(buf, '/')
	buf = append(buf, encoded...)
	return buf
}

// OwnerOf returns the current owner of the position. The boolean reports
// whether the position exists.
func (r *Registry) OwnerOf(class string, id uint64) ([20]byte, bool, error) {
	var owner [20]byte
	if r == nil || r.store == nil {
		return owner, false, errNilStore
	}
	normalized, err := normalizeClass(class)
	if err != nil {
		return owner, false, err
	}
	ok, err := r.store.KVGet(positionKey(normalized, id), &owner)
	if err != nil {
		return owner, false, err
	}
	return owner, ok, nil
}

// Mint records a freshly issued position owned by the recipient.
func (r *Registry) Mint(class string, id uint64, owner [20]byte) error {
	if r == nil || r.store == nil {
		return errNilStore
	}
	normalized, err := normalizeClass(class)
	if err != nil {
		return err
	}
	_, ok, err := r.OwnerOf(normalized, id)
	if err != nil {
		return err
	}
	if ok {
		return errPositionExists
	}
	return r.store.KVPut(positionKey(normalized, id), owner)
}

// Transfer moves the position from its current owner to the recipient. The
// transfer is declined when from does not own the position.
func (r *Registry) Transfer(class string, id uint64, from, to [20]byte) error {
	if r == nil || r.store == nil {
		return errNilStore
	}
	normalized, err := normalizeClass(class)
	if err != nil {
		return err
	}
	owner, ok, err := r.OwnerOf(normalized, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s/%d", errPositionNotFound, normalized, id)
	}
	if owner != from {
		return errNotPositionOwner
	}
	return r.store.KVPut(positionKey(normalized, id), to)
}

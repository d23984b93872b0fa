package vm

import (
	"strings"
)

// Table is a mutable Value-to-Value map shared by reference. Copying a table
// Value copies the handle, so every copy observes the same entries.
//
// Each operation takes the table's borrow flag for its duration. An operation
// started while the flag is held (for example from inside Borrow) fails with
// ErrBorrowConflict instead of observing a half-applied change.
type Table struct {
	index    map[tableKey]int
	keys     []Value
	values   []Value
	borrowed bool
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{index: make(map[tableKey]int)}
}

// NewArrayTable creates a table holding values under the keys 0..len-1.
func NewArrayTable(values []Value) *Table {
	t := &Table{
		index:  make(map[tableKey]int, len(values)),
		keys:   make([]Value, len(values)),
		values: make([]Value, len(values)),
	}
	for i, v := range values {
		k := Int(int32(i))
		t.index[k.key()] = i
		t.keys[i] = k
		t.values[i] = v
	}
	return t
}

func (t *Table) acquire() error {
	if t.borrowed {
		return ErrBorrowConflict
	}
	t.borrowed = true
	return nil
}

func (t *Table) release() { t.borrowed = false }

// Get returns the value stored under key, or Nil when the key is absent.
func (t *Table) Get(key Value) (Value, error) {
	if err := t.acquire(); err != nil {
		return Nil, err
	}
	defer t.release()
	if i, ok := t.index[key.key()]; ok {
		return t.values[i], nil
	}
	return Nil, nil
}

// Set stores value under key, replacing any previous value.
func (t *Table) Set(key, value Value) error {
	if err := t.acquire(); err != nil {
		return err
	}
	defer t.release()
	t.set(key, value)
	return nil
}

func (t *Table) set(key, value Value) {
	k := key.key()
	if i, ok := t.index[k]; ok {
		t.values[i] = value
		return
	}
	t.index[k] = len(t.keys)
	t.keys = append(t.keys, key)
	t.values = append(t.values, value)
}

// Len returns the number of entries.
func (t *Table) Len() int { return len(t.keys) }

// Borrow holds the table exclusively while fn runs. fn receives the entries
// in insertion order; any table operation on t made by fn fails.
func (t *Table) Borrow(fn func(keys, values []Value) error) error {
	if err := t.acquire(); err != nil {
		return err
	}
	defer t.release()
	return fn(t.keys, t.values)
}

func (t *Table) display(sb *strings.Builder) {
	if t.borrowed {
		sb.WriteString("{<borrowed>}")
		return
	}
	t.borrowed = true
	defer t.release()
	sb.WriteString("{")
	for i, k := range t.keys {
		sb.WriteString("\n\t")
		k.display(sb)
		sb.WriteString(": ")
		t.values[i].display(sb)
	}
	if len(t.keys) > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString("}")
}

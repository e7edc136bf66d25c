package storage

import (
	"bytes"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

const maxTxnAttempts = 16

type writeOp struct {
	coll  string
	id    string
	rest  []string
	value any
}

// AtomicWrite applies every path in updates as a single commit: either
// all paths are written and observed together, or none are. A nil value
// deletes the record (or field) at its path.
func (s *Store) AtomicWrite(updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}

	now := time.Now().UnixMilli()

	ops := make([]writeOp, 0, len(updates))
	for path, value := range updates {
		coll, id, rest, err := splitPath(path)
		if err != nil {
			return err
		}
		norm, err := normalize(value, now)
		if err != nil {
			return fmt.Errorf("bad value for %q: %w", path, err)
		}
		if len(rest) == 0 && norm != nil {
			if _, ok := norm.(map[string]any); !ok {
				return fmt.Errorf("%w: record value for %q must be a map", ErrBadPath, path)
			}
		}
		ops = append(ops, writeOp{coll: coll, id: id, rest: rest, value: norm})
	}

	touched := make(map[recordKey]bool, len(ops))
	err := s.db.Update(func(tx *bbolt.Tx) error {
		docs := make(map[recordKey]map[string]any, len(ops))
		for _, op := range ops {
			key := recordKey{op.coll, op.id}
			doc, ok := docs[key]
			if !ok {
				var err error
				doc, _, err = readDoc(tx, op.coll, op.id)
				if err != nil {
					return err
				}
			}

			switch {
			case len(op.rest) == 0 && op.value == nil:
				doc = nil
			case len(op.rest) == 0:
				doc = op.value.(map[string]any)
			default:
				if doc == nil {
					if op.value == nil {
						docs[key] = nil
						touched[key] = true
						continue
					}
					doc = make(map[string]any)
				}
				setAt(doc, op.rest, op.value)
			}
			docs[key] = doc
			touched[key] = true
		}

		for key, doc := range docs {
			if err := writeDoc(tx, key.coll, key.id, doc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.notify(touched)
	return nil
}

// Transact runs a read-compute-conditional-write loop against the value
// at path. fn receives the current value (nil if absent) and returns the
// value to commit; returning nil for a nil input commits nothing. On a
// concurrent change between read and write the loop retries with the
// freshly read value, backing off, up to maxTxnAttempts.
func (s *Store) Transact(path string, fn func(current any) any) (any, error) {
	coll, id, rest, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	backoff := time.Millisecond
	for attempt := 0; attempt < maxTxnAttempts; attempt++ {
		var before []byte
		var current any
		err := s.db.View(func(tx *bbolt.Tx) error {
			doc, raw, err := readDoc(tx, coll, id)
			if err != nil {
				return err
			}
			before = raw
			if doc == nil {
				return nil
			}
			if len(rest) == 0 {
				current = doc
			} else {
				current = fieldAt(doc, rest)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		next := fn(current)

		now := time.Now().UnixMilli()
		norm, err := normalize(next, now)
		if err != nil {
			return nil, fmt.Errorf("bad value for %q: %w", path, err)
		}

		committed := false
		err = s.db.Update(func(tx *bbolt.Tx) error {
			doc, raw, err := readDoc(tx, coll, id)
			if err != nil {
				return err
			}
			if !bytes.Equal(raw, before) {
				return nil // concurrent write, retry outside
			}

			switch {
			case len(rest) == 0 && norm == nil:
				doc = nil
			case len(rest) == 0:
				m, ok := norm.(map[string]any)
				if !ok {
					return fmt.Errorf("%w: record value for %q must be a map", ErrBadPath, path)
				}
				doc = m
			default:
				if doc == nil {
					if norm == nil {
						committed = true
						return nil
					}
					doc = make(map[string]any)
				}
				setAt(doc, rest, norm)
			}

			if err := writeDoc(tx, coll, id, doc); err != nil {
				return err
			}
			committed = true
			return nil
		})
		if err != nil {
			return nil, err
		}
		if committed {
			s.notify(map[recordKey]bool{{coll, id}: true})
			return norm, nil
		}

		time.Sleep(backoff)
		backoff *= 2
	}

	return nil, fmt.Errorf("%w: %s", ErrConflict, path)
}

// normalize converts an arbitrary value into the store's tree form
// (map[string]any / scalars) and resolves ServerTimestamp sentinels
// against the commit time.
func normalize(v any, now int64) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case serverTimestamp:
		return now, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			norm, err := normalize(val, now)
			if err != nil {
				return nil, err
			}
			if norm == nil {
				continue
			}
			out[k] = norm
		}
		return out, nil
	default:
		// Structs and remaining scalars take a codec round-trip into
		// tree form, the same representation they have at rest.
		b, err := msgpack.Marshal(v)
		if err != nil {
			return nil, err
		}
		var out any
		if err := msgpack.Unmarshal(b, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

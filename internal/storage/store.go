package storage

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

var (
	bucketMessages = []byte("messages")
	bucketRooms    = []byte("rooms")
	bucketProfiles = []byte("profiles")
	bucketStatus   = []byte("status")
)

var collections = map[string][]byte{
	"messages": bucketMessages,
	"rooms":    bucketRooms,
	"profiles": bucketProfiles,
	"status":   bucketStatus,
}

var (
	ErrBadPath  = errors.New("malformed path")
	ErrConflict = errors.New("transaction conflict: retries exhausted")
)

// ServerTimestamp marks a value to be replaced with the commit
// timestamp (milliseconds since epoch) when the write is applied.
// For deferred writes it resolves when the write fires, not when
// it is registered.
var ServerTimestamp serverTimestamp

type serverTimestamp struct{}

// Store is an embedded realtime document store. Records are addressed
// by logical paths (collection/id[/field...]); writes touching several
// paths are applied atomically and observed atomically by subscribers.
type Store struct {
	db *bbolt.DB

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy

	mu        sync.Mutex
	rangeSubs map[string]*Subscription
	valueSubs map[string]*ValueSubscription
	sessions  map[string]*session
}

func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range collections {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Store{
		db:        db,
		entropy:   ulid.Monotonic(rand.Reader, 0),
		rangeSubs: make(map[string]*Subscription),
		valueSubs: make(map[string]*ValueSubscription),
		sessions:  make(map[string]*session),
	}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	for id := range s.rangeSubs {
		s.dropRangeSub(id)
	}
	for id := range s.valueSubs {
		s.dropValueSub(id)
	}
	s.mu.Unlock()
	return s.db.Close()
}

// GenerateID returns a new identifier for a record in the collection.
// IDs are monotonic and lexically sortable, so key order matches
// creation order even within one millisecond.
func (s *Store) GenerateID(collection string) string {
	// collection participates in addressing only; ids are globally unique
	s.idMu.Lock()
	defer s.idMu.Unlock()
	return ulid.MustNew(ulid.Now(), s.entropy).String()
}

// Read returns the value at path, or nil if nothing is stored there.
func (s *Store) Read(path string) (any, error) {
	coll, id, rest, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	var out any
	err = s.db.View(func(tx *bbolt.Tx) error {
		doc, _, err := readDoc(tx, coll, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return nil
		}
		if len(rest) == 0 {
			out = doc
			return nil
		}
		out = fieldAt(doc, rest)
		return nil
	})
	return out, err
}

// splitPath parses "collection/id[/field...]" and validates the collection.
func splitPath(path string) (coll, id string, rest []string, err error) {
	segs := strings.Split(path, "/")
	if len(segs) < 2 {
		return "", "", nil, fmt.Errorf("%w: %q", ErrBadPath, path)
	}
	for _, seg := range segs {
		if seg == "" {
			return "", "", nil, fmt.Errorf("%w: %q", ErrBadPath, path)
		}
	}
	if _, ok := collections[segs[0]]; !ok {
		return "", "", nil, fmt.Errorf("%w: unknown collection in %q", ErrBadPath, path)
	}
	return segs[0], segs[1], segs[2:], nil
}

// readDoc loads and decodes one record. A nil doc means the record is absent.
func readDoc(tx *bbolt.Tx, coll, id string) (map[string]any, []byte, error) {
	raw := tx.Bucket(collections[coll]).Get([]byte(id))
	if raw == nil {
		return nil, nil, nil
	}
	var doc map[string]any
	if err := msgpack.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("failed to decode %s/%s: %w", coll, id, err)
	}
	return doc, raw, nil
}

func writeDoc(tx *bbolt.Tx, coll, id string, doc map[string]any) error {
	b := tx.Bucket(collections[coll])
	if doc == nil {
		return b.Delete([]byte(id))
	}
	raw, err := msgpack.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", coll, id, err)
	}
	return b.Put([]byte(id), raw)
}

// fieldAt walks the document tree along the field path.
func fieldAt(doc map[string]any, fields []string) any {
	var cur any = doc
	for _, f := range fields {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[f]
	}
	return cur
}

// setAt sets (or, for a nil value, deletes) the leaf at the field path,
// creating intermediate maps as needed.
func setAt(doc map[string]any, fields []string, value any) {
	cur := doc
	for _, f := range fields[:len(fields)-1] {
		next, ok := cur[f].(map[string]any)
		if !ok {
			if value == nil {
				return // nothing to delete below a missing branch
			}
			next = make(map[string]any)
			cur[f] = next
		}
		cur = next
	}
	leaf := fields[len(fields)-1]
	if value == nil {
		delete(cur, leaf)
		return
	}
	cur[leaf] = value
}

package storage

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
	"go.etcd.io/bbolt"
)

// Snapshot is the full current contents of a range query, keyed by
// record id. Every delivery carries the whole window; consumers replace
// their local state wholesale.
type Snapshot map[string]map[string]any

type recordKey struct {
	coll string
	id   string
}

// Subscription is a live range query over one collection. Each update
// supersedes the previous one: an undelivered snapshot is replaced, never
// queued behind, so the consumer always observes the latest state.
type Subscription struct {
	id          string
	collection  string
	filterField []string
	filterValue string
	limit       int

	ch chan Snapshot
}

// Updates delivers full snapshots, the current one first.
func (sub *Subscription) Updates() <-chan Snapshot { return sub.ch }

// ValueSubscription is a live view of a single path.
type ValueSubscription struct {
	id   string
	coll string
	rec  string
	rest []string

	ch chan any
}

func (sub *ValueSubscription) Updates() <-chan any { return sub.ch }

// RangeSubscribe opens a live subscription to the records of collection
// whose filterField equals filterValue (no filtering when filterField is
// empty), ordered by id, keeping only the limitToLast most recent when
// limitToLast > 0. The current snapshot is delivered immediately.
func (s *Store) RangeSubscribe(collection, filterField, filterValue string, limitToLast int) (*Subscription, error) {
	if _, ok := collections[collection]; !ok {
		return nil, ErrBadPath
	}

	sub := &Subscription{
		id:          uuid.NewString(),
		collection:  collection,
		filterValue: filterValue,
		limit:       limitToLast,
		ch:          make(chan Snapshot, 1),
	}
	if filterField != "" {
		sub.filterField = strings.Split(filterField, "/")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rangeSubs[sub.id] = sub

	snap, err := s.computeRange(sub)
	if err != nil {
		delete(s.rangeSubs, sub.id)
		return nil, err
	}
	deliver(sub.ch, snap)
	return sub, nil
}

// Cancel tears the subscription down synchronously: after Cancel returns
// no further snapshot is delivered and the updates channel is closed.
func (s *Store) Cancel(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropRangeSub(sub.id)
}

func (s *Store) dropRangeSub(id string) {
	sub, ok := s.rangeSubs[id]
	if !ok {
		return
	}
	delete(s.rangeSubs, id)
	close(sub.ch)
}

// ValueSubscribe opens a live subscription to a single path. The current
// value (nil if absent) is delivered immediately.
func (s *Store) ValueSubscribe(path string) (*ValueSubscription, error) {
	coll, id, rest, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	sub := &ValueSubscription{
		id:   uuid.NewString(),
		coll: coll,
		rec:  id,
		rest: rest,
		ch:   make(chan any, 1),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.valueSubs[sub.id] = sub

	val, err := s.Read(path)
	if err != nil {
		delete(s.valueSubs, sub.id)
		return nil, err
	}
	deliver(sub.ch, val)
	return sub, nil
}

func (s *Store) CancelValue(sub *ValueSubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropValueSub(sub.id)
}

func (s *Store) dropValueSub(id string) {
	sub, ok := s.valueSubs[id]
	if !ok {
		return
	}
	delete(s.valueSubs, id)
	close(sub.ch)
}

// QueryOnce runs a one-shot filtered read over a collection. filterField
// may address a nested field ("author/uid").
func (s *Store) QueryOnce(collection, filterField, filterValue string) (Snapshot, error) {
	if _, ok := collections[collection]; !ok {
		return nil, ErrBadPath
	}
	sub := &Subscription{collection: collection, filterValue: filterValue}
	if filterField != "" {
		sub.filterField = strings.Split(filterField, "/")
	}
	return s.computeRange(sub)
}

// notify re-evaluates every subscription affected by the touched records
// and delivers fresh snapshots, in registration order, holding the
// registry lock so deliveries on one subscription never reorder.
func (s *Store) notify(touched map[recordKey]bool) {
	touchedColls := make(map[string]bool, len(touched))
	for key := range touched {
		touchedColls[key.coll] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.rangeSubs {
		if !touchedColls[sub.collection] {
			continue
		}
		snap, err := s.computeRange(sub)
		if err != nil {
			continue
		}
		deliver(sub.ch, snap)
	}

	for _, sub := range s.valueSubs {
		if !touched[recordKey{sub.coll, sub.rec}] {
			continue
		}
		var val any
		err := s.db.View(func(tx *bbolt.Tx) error {
			doc, _, err := readDoc(tx, sub.coll, sub.rec)
			if err != nil {
				return err
			}
			if doc == nil {
				return nil
			}
			if len(sub.rest) == 0 {
				val = doc
			} else {
				val = fieldAt(doc, sub.rest)
			}
			return nil
		})
		if err != nil {
			continue
		}
		deliver(sub.ch, val)
	}
}

// computeRange builds the current snapshot for a range query. Records
// iterate in key order, so the trailing limit is the most recent slice.
func (s *Store) computeRange(sub *Subscription) (Snapshot, error) {
	var ids []string
	docs := make(Snapshot)

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(collections[sub.collection]).ForEach(func(k, v []byte) error {
			var doc map[string]any
			if err := msgpack.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("failed to decode %s/%s: %w", sub.collection, k, err)
			}
			if sub.filterField != nil {
				got, _ := fieldAt(doc, sub.filterField).(string)
				if got != sub.filterValue {
					return nil
				}
			}
			ids = append(ids, string(k))
			docs[string(k)] = doc
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if sub.limit > 0 && len(ids) > sub.limit {
		sort.Strings(ids)
		for _, id := range ids[:len(ids)-sub.limit] {
			delete(docs, id)
		}
	}
	return docs, nil
}

// deliver replaces an undelivered item instead of blocking, keeping the
// latest-snapshot-wins contract per subscription.
func deliver[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

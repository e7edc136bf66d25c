// Package entity converts the store's keyed-map snapshots into ordered,
// identified entity lists.
package entity

import (
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"talkroom/internal/models"
	"talkroom/internal/storage"
)

// Decode maps a raw document tree onto a typed entity through the same
// codec the store uses at rest.
func Decode(raw map[string]any, out any) error {
	b, err := msgpack.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	if err := msgpack.Unmarshal(b, out); err != nil {
		return fmt.Errorf("failed to decode document: %w", err)
	}
	return nil
}

// Messages converts a snapshot into messages ordered by id. Ids are
// monotonic, so id order is creation order.
func Messages(snap storage.Snapshot) ([]models.Message, error) {
	ids := sortedIDs(snap)
	msgs := make([]models.Message, 0, len(ids))
	for _, id := range ids {
		var m models.Message
		if err := Decode(snap[id], &m); err != nil {
			return nil, fmt.Errorf("message %s: %w", id, err)
		}
		m.ID = id
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Rooms converts a snapshot into rooms ordered by id.
func Rooms(snap storage.Snapshot) ([]models.Room, error) {
	ids := sortedIDs(snap)
	rooms := make([]models.Room, 0, len(ids))
	for _, id := range ids {
		var r models.Room
		if err := Decode(snap[id], &r); err != nil {
			return nil, fmt.Errorf("room %s: %w", id, err)
		}
		r.ID = id
		rooms = append(rooms, r)
	}
	return rooms, nil
}

// Presence decodes a single status value. ok is false when no record
// exists yet for the user.
func Presence(raw any) (models.Presence, bool) {
	doc, ok := raw.(map[string]any)
	if !ok {
		return models.Presence{}, false
	}
	var p models.Presence
	if err := Decode(doc, &p); err != nil {
		return models.Presence{}, false
	}
	return p, p.Known()
}

// Profile decodes a single profile value.
func Profile(uid string, raw any) (models.Profile, error) {
	doc, ok := raw.(map[string]any)
	if !ok {
		return models.Profile{}, models.ErrNotFound
	}
	var p models.Profile
	if err := Decode(doc, &p); err != nil {
		return models.Profile{}, err
	}
	p.UID = uid
	return p, nil
}

func sortedIDs(snap storage.Snapshot) []string {
	ids := make([]string, 0, len(snap))
	for id := range snap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

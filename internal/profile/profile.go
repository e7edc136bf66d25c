// Package profile serves user profiles and applies profile mutations,
// fanning each change out to the denormalized author snapshots embedded
// in past messages and room last-message pointers.
package profile

import (
	"context"
	"fmt"
	"time"

	"github.com/c-pro/geche"

	"talkroom/internal/entity"
	"talkroom/internal/models"
	"talkroom/internal/storage"
)

const cacheTTL = time.Minute

type Service struct {
	store *storage.Store
	cache geche.Geche[string, models.Profile]
}

func NewService(ctx context.Context, store *storage.Store) *Service {
	return &Service{
		store: store,
		cache: geche.NewMapTTLCache[string, models.Profile](ctx, cacheTTL, 10*time.Second),
	}
}

// Get returns the profile for uid, served from cache when fresh.
func (s *Service) Get(uid string) (models.Profile, error) {
	if p, err := s.cache.Get(uid); err == nil {
		return p, nil
	}

	raw, err := s.store.Read("profiles/" + uid)
	if err != nil {
		return models.Profile{}, err
	}
	p, err := entity.Profile(uid, raw)
	if err != nil {
		return models.Profile{}, err
	}
	s.cache.Set(uid, p)
	return p, nil
}

// Create writes a fresh profile record for a first-time user.
func (s *Service) Create(uid, name string) error {
	if name == "" {
		return models.ErrMissingField
	}
	return s.store.AtomicWrite(map[string]any{
		"profiles/" + uid: map[string]any{
			"name":      name,
			"createdAt": storage.ServerTimestamp,
		},
	})
}

// UpdateName renames the user and rewrites every author snapshot the
// rename invalidates.
func (s *Service) UpdateName(uid, name string) error {
	if name == "" {
		return models.ErrMissingField
	}
	return s.updateField(uid, "name", name)
}

// UpdateAvatar sets the avatar URL and rewrites the author snapshots.
func (s *Service) UpdateAvatar(uid, url string) error {
	return s.updateField(uid, "avatar", url)
}

// updateField builds one commit covering the profile record, every
// loaded message authored by uid, and every last-message pointer whose
// author is uid. The fan-out is batch-applied here, never automatic.
func (s *Service) updateField(uid, key string, value any) error {
	updates := map[string]any{
		"profiles/" + uid + "/" + key: value,
	}

	msgs, err := s.store.QueryOnce("messages", "author/uid", uid)
	if err != nil {
		return fmt.Errorf("failed to collect authored messages: %w", err)
	}
	for id := range msgs {
		updates["messages/"+id+"/author/"+key] = value
	}

	rooms, err := s.store.QueryOnce("rooms", "lastMessage/author/uid", uid)
	if err != nil {
		return fmt.Errorf("failed to collect room pointers: %w", err)
	}
	for id := range rooms {
		updates["rooms/"+id+"/lastMessage/author/"+key] = value
	}

	if err := s.store.AtomicWrite(updates); err != nil {
		return err
	}
	_ = s.cache.Del(uid)
	return nil
}

// Author captures the send-time snapshot embedded in new messages.
func (s *Service) Author(uid string) (models.Author, error) {
	p, err := s.Get(uid)
	if err != nil {
		return models.Author{}, err
	}
	return models.Author{
		UID:       p.UID,
		Name:      p.Name,
		CreatedAt: p.CreatedAt,
		Avatar:    p.Avatar,
	}, nil
}

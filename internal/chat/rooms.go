package chat

import (
	"talkroom/internal/content"
	"talkroom/internal/entity"
	"talkroom/internal/models"
	"talkroom/internal/storage"
)

// CreateRoom validates the required fields, then writes the room with
// its creator as the sole admin.
func (c *Client) CreateRoom(name, description, creatorUID string) (string, error) {
	if err := content.ValidateRoomFields(name, description); err != nil {
		return "", err
	}

	id := c.store.GenerateID("rooms")
	room := map[string]any{
		"name":        content.Sanitize(name),
		"description": content.Sanitize(description),
		"createdAt":   storage.ServerTimestamp,
		"admins":      map[string]any{creatorUID: true},
	}
	if err := c.store.AtomicWrite(map[string]any{"rooms/" + id: room}); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateRoom edits a room's name and description.
func (c *Client) UpdateRoom(roomID, name, description string) error {
	if err := content.ValidateRoomFields(name, description); err != nil {
		return err
	}
	return c.store.AtomicWrite(map[string]any{
		"rooms/" + roomID + "/name":        content.Sanitize(name),
		"rooms/" + roomID + "/description": content.Sanitize(description),
	})
}

// SubscribeRooms streams the full room list on every change, latest
// snapshot wins. cancel releases the subscription.
func (c *Client) SubscribeRooms() (<-chan []models.Room, func(), error) {
	sub, err := c.store.RangeSubscribe("rooms", "", "", 0)
	if err != nil {
		return nil, nil, err
	}

	ch := make(chan []models.Room, 1)
	go func() {
		defer close(ch)
		for snap := range sub.Updates() {
			rooms, err := entity.Rooms(snap)
			if err != nil {
				c.log.Error("dropping malformed rooms snapshot", "err", err)
				continue
			}
			replace(ch, rooms)
		}
	}()

	cancel := func() { c.store.Cancel(sub) }
	return ch, cancel, nil
}

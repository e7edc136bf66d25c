package chat

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"talkroom/internal/content"
	"talkroom/internal/filestore"
	"talkroom/internal/models"
	"talkroom/internal/storage"
)

// ErrBlobDelete marks the partial failure where a message was removed
// from the store but its stored file could not be deleted. The logical
// deletion stands; the blob is leaked and only reported.
var ErrBlobDelete = errors.New("stored file could not be deleted")

type RepointKind int

const (
	// RepointUntouched: the deleted message was not the room's last
	// message, the pointer is left alone.
	RepointUntouched RepointKind = iota
	// RepointCleared: the room's only message was deleted.
	RepointCleared
	// RepointNext: the pointer moved to the next most recent message.
	RepointNext
)

// RepointResult reports which branch the delete took for the room's
// last-message pointer.
type RepointResult struct {
	Kind   RepointKind
	NextID string
}

// assembleMessage builds the stored form of a new message: the author
// snapshot captured at send time and a commit-time creation timestamp.
func assembleMessage(author models.Author, roomID string) map[string]any {
	return map[string]any{
		"room":      roomID,
		"author":    author,
		"createdAt": storage.ServerTimestamp,
		"likeCount": 0,
	}
}

// lastMessageValue mirrors a message into the room's last-message
// pointer, adding the identifier of the message it was copied from.
func lastMessageValue(msg map[string]any, msgID string) map[string]any {
	last := make(map[string]any, len(msg)+1)
	for k, v := range msg {
		last[k] = v
	}
	last["msgId"] = msgID
	return last
}

// SendText writes a new text message and the room's last-message
// pointer in one commit. Validation happens before any store call.
func (c *Client) SendText(roomID string, author models.Author, text string) (string, error) {
	text, err := content.ValidateMessage(text)
	if err != nil {
		return "", err
	}

	msg := assembleMessage(author, roomID)
	msg["text"] = text

	id := c.store.GenerateID("messages")
	err = c.store.AtomicWrite(map[string]any{
		"messages/" + id:                  msg,
		"rooms/" + roomID + "/lastMessage": lastMessageValue(msg, id),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// SendFiles writes one message per uploaded file plus the last-message
// pointer, all in one commit. The pointer references the last file in
// the given order.
func (c *Client) SendFiles(roomID string, author models.Author, files []models.FileInfo) ([]string, error) {
	if len(files) == 0 {
		return nil, models.ErrEmptyMessage
	}

	updates := make(map[string]any, len(files)+1)
	ids := make([]string, 0, len(files))
	var lastMsg map[string]any
	for _, f := range files {
		msg := assembleMessage(author, roomID)
		msg["file"] = f

		id := c.store.GenerateID("messages")
		updates["messages/"+id] = msg
		ids = append(ids, id)
		lastMsg = msg
	}
	updates["rooms/"+roomID+"/lastMessage"] = lastMessageValue(lastMsg, ids[len(ids)-1])

	if err := c.store.AtomicWrite(updates); err != nil {
		return nil, err
	}
	return ids, nil
}

// Upload stores a file payload and returns the descriptor to send with
// SendFiles. Content type is sniffed from the payload itself.
func (c *Client) Upload(name string, data []byte) (models.FileInfo, error) {
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])
	if err := c.files.Save(bytes.NewReader(data), hash); err != nil {
		return models.FileInfo{}, fmt.Errorf("failed to store upload: %w", err)
	}
	return models.FileInfo{
		ContentType: content.SniffFileType(data),
		Name:        name,
		URL:         filestore.URL(hash),
	}, nil
}

// DeleteMessage removes a message; when it was the room's last message
// the pointer is cleared or repointed to the next most recent message in
// the same commit. The replacement is computed from the caller's loaded
// window, not a server query, so a window that evicted the true
// next-most-recent message repoints incorrectly. After the commit, the
// associated stored file (if any) is removed in a separate, non-atomic
// step; a failure there is reported via ErrBlobDelete and never rolls
// the first step back. If the commit itself fails, the blob is left
// untouched.
func (c *Client) DeleteMessage(roomID, msgID string, window []models.Message) (RepointResult, error) {
	var target *models.Message
	for i := range window {
		if window[i].ID == msgID {
			target = &window[i]
			break
		}
	}

	res := RepointResult{Kind: RepointUntouched}
	updates := map[string]any{"messages/" + msgID: nil}

	isLast := len(window) > 0 && window[len(window)-1].ID == msgID
	switch {
	case isLast && len(window) == 1:
		updates["rooms/"+roomID+"/lastMessage"] = nil
		res.Kind = RepointCleared
	case isLast && len(window) > 1:
		prev := window[len(window)-2]
		updates["rooms/"+roomID+"/lastMessage"] = models.LastMessage{Message: prev, MsgID: prev.ID}
		res = RepointResult{Kind: RepointNext, NextID: prev.ID}
	}

	if err := c.store.AtomicWrite(updates); err != nil {
		// Skip blob deletion entirely: a deletable record must not end
		// up pointing at a removed blob.
		return res, err
	}

	if target != nil && target.File != nil {
		if err := c.files.Delete(target.File.URL); err != nil {
			c.log.Error("leaked blob after message delete", "msg", msgID, "url", target.File.URL, "err", err)
			return res, fmt.Errorf("%w: %v", ErrBlobDelete, err)
		}
	}
	return res, nil
}

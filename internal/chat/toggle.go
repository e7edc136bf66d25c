package chat

// Outcome notices for the optimistic toggles, decided by the state seen
// before mutation.
const (
	NoticeLiked        = "You liked this message"
	NoticeUnliked      = "You unliked this message"
	NoticeAdminGranted = "Admin permission granted"
	NoticeAdminRevoked = "Admin permission revoked"
)

// ToggleLike flips uid's like on a message inside a store transaction.
// Membership is checked before the counter moves, so the count can never
// go negative and two toggles by the same user cancel out exactly.
func (c *Client) ToggleLike(msgID, uid string) (string, error) {
	var outcome string
	_, err := c.store.Transact("messages/"+msgID, func(current any) any {
		msg, ok := current.(map[string]any)
		if !ok {
			return current // message gone, nothing to toggle
		}

		likes, _ := msg["likes"].(map[string]any)
		if likes != nil && likes[uid] != nil {
			msg["likeCount"] = asInt(msg["likeCount"]) - 1
			delete(likes, uid)
			if len(likes) == 0 {
				delete(msg, "likes")
			}
			outcome = NoticeUnliked
		} else {
			msg["likeCount"] = asInt(msg["likeCount"]) + 1
			if likes == nil {
				likes = make(map[string]any)
				msg["likes"] = likes
			}
			likes[uid] = true
			outcome = NoticeLiked
		}
		return msg
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// ToggleAdmin flips uid's membership in the room's admin set. A room
// without an admin set is malformed and the transaction is a no-op.
func (c *Client) ToggleAdmin(roomID, uid string) (string, error) {
	var outcome string
	_, err := c.store.Transact("rooms/"+roomID+"/admins", func(current any) any {
		admins, ok := current.(map[string]any)
		if !ok {
			return current
		}

		if admins[uid] != nil {
			delete(admins, uid)
			outcome = NoticeAdminRevoked
		} else {
			admins[uid] = true
			outcome = NoticeAdminGranted
		}
		return admins
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}

// asInt reads a numeric tree value regardless of the width the codec
// decoded it to.
func asInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int8:
		return int(t)
	case int16:
		return int(t)
	case int32:
		return int(t)
	case int64:
		return int(t)
	case uint8:
		return int(t)
	case uint16:
		return int(t)
	case uint32:
		return int(t)
	case uint64:
		return int(t)
	case float64:
		return int(t)
	default:
		return 0
	}
}

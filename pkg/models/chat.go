package models

import "time"

// chat record fields
const (
	FieldUserIDs             = "userIds"
	FieldUsers               = "users"
	FieldUserToMessageReadAt = "userToMessageReadAt"
)

// Chat is a conversation between a fixed participant set. UserIDs is the
// canonical key and the only identity the store matches on.
type Chat struct {
	ID                  string               `json:"id"`
	UserIDs             []string             `json:"userIds"`
	Users               []User               `json:"users"`
	UserToMessageReadAt map[string]time.Time `json:"userToMessageReadAt,omitempty"`
}

// HasParticipant reports whether userID belongs to the chat.
func (c *Chat) HasParticipant(userID string) bool {
	for _, id := range c.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// NewChatFields builds the record written when a chat is first created.
func NewChatFields(key []string, users []User) map[string]any {
	ids := make([]any, len(key))
	for i, id := range key {
		ids[i] = id
	}
	embedded := make([]any, len(users))
	for i, u := range users {
		embedded[i] = u.Fields()
	}
	return map[string]any{
		FieldUserIDs: ids,
		FieldUsers:   embedded,
	}
}

// ChatFromFields decodes a chat record. Embedded users are kept as stored;
// loaders replace them with freshly resolved profiles.
func ChatFromFields(id string, f map[string]any) *Chat {
	c := &Chat{ID: id, UserIDs: stringsField(f, FieldUserIDs)}
	if raw, ok := f[FieldUsers].([]any); ok {
		for _, item := range raw {
			if m, ok := item.(map[string]any); ok {
				c.Users = append(c.Users, UserFromFields(m))
			}
		}
	}
	c.UserToMessageReadAt = ReadAtFromFields(f)
	return c
}

// ReadAtFromFields extracts the read cursor map. Entries whose timestamp
// has not been resolved by the store yet are skipped.
func ReadAtFromFields(f map[string]any) map[string]time.Time {
	out := make(map[string]time.Time)
	raw, ok := f[FieldUserToMessageReadAt].(map[string]any)
	if !ok {
		return out
	}
	for uid, v := range raw {
		if ts, ok := v.(time.Time); ok {
			out[uid] = ts
		}
	}
	return out
}

// ChatPath is the document path of a chat record.
func ChatPath(chatID string) string {
	return CollectionChats + "/" + chatID
}

// MessagesPath is the collection holding a chat's messages.
func MessagesPath(chatID string) string {
	return ChatPath(chatID) + "/" + CollectionMessages
}

// ReadAtField is the dotted update key for one user's read cursor.
func ReadAtField(userID string) string {
	return FieldUserToMessageReadAt + "." + userID
}

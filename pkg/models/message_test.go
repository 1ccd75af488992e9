package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageContentReadableViaEitherField(t *testing.T) {
	url := "http://files.local/v1/blobs/chat/c1/a.jpg"
	written := NewMessageFields(User{UserID: "u1"}, ImageContent(url), time.Unix(10, 0))

	assert.Equal(t, url, written[FieldImageURL])
	assert.Equal(t, url, written[FieldLegacyImageURL])

	onlyCurrent := map[string]any{FieldImageURL: written[FieldImageURL]}
	onlyLegacy := map[string]any{FieldLegacyImageURL: written[FieldLegacyImageURL]}

	for name, f := range map[string]map[string]any{"current": onlyCurrent, "legacy": onlyLegacy, "both": written} {
		c, err := ContentFromFields(f)
		require.NoError(t, err, name)
		assert.Equal(t, ContentImage, c.Kind(), name)
		assert.Equal(t, url, c.ImageURL(), name)
	}
}

func TestContentFieldsHoldOneVariant(t *testing.T) {
	tests := []struct {
		name    string
		content Content
		want    map[string]any
	}{
		{"text", TextContent("hi"), map[string]any{FieldText: "hi"}},
		{"audio", AudioContent("a.m4a"), map[string]any{FieldAudioURL: "a.m4a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.content.Fields())
			assert.Empty(t, tt.content.ImageURL())
		})
	}
}

func TestMessageFromFieldsCreatedAtFallback(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	pending := map[string]any{
		FieldText:      "hello",
		FieldUser:      map[string]any{FieldUserID: "u1", FieldName: "Ann"},
		FieldCreatedAt: nil,
	}
	m, err := MessageFromFields("m1", pending, clock)
	require.NoError(t, err)
	assert.Equal(t, now, m.CreatedAt)
	assert.Equal(t, "Ann", m.User.Name)

	stamped := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	pending[FieldCreatedAt] = stamped
	m, err = MessageFromFields("m1", pending, clock)
	require.NoError(t, err)
	assert.Equal(t, stamped, m.CreatedAt)

	_, err = MessageFromFields("m2", map[string]any{FieldUser: map[string]any{}}, clock)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestMessageJSONShape(t *testing.T) {
	m := Message{ID: "m1", User: User{UserID: "u1"}, CreatedAt: time.Unix(0, 0).UTC(), Content: AudioContent("x.m4a")}
	b, err := json.Marshal(m)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "x.m4a", raw["audioUrl"])
	assert.NotContains(t, raw, "text")
	assert.NotContains(t, raw, "imageUrl")

	var back Message
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, m.Content, back.Content)
}

func TestChatFromFields(t *testing.T) {
	read := time.Unix(100, 0).UTC()
	f := NewChatFields([]string{"u1", "u2"}, []User{{UserID: "u1"}, {UserID: "u2"}})
	f[FieldUserToMessageReadAt] = map[string]any{"u1": read, "u2": nil}

	c := ChatFromFields("c1", f)
	assert.Equal(t, []string{"u1", "u2"}, c.UserIDs)
	assert.Len(t, c.Users, 2)
	assert.Equal(t, map[string]time.Time{"u1": read}, c.UserToMessageReadAt)
	assert.True(t, c.HasParticipant("u2"))
	assert.False(t, c.HasParticipant("u3"))
	assert.Equal(t, "userToMessageReadAt.u9", ReadAtField("u9"))
	assert.Equal(t, "chats/c1/messages", MessagesPath("c1"))
}

package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// message record fields
const (
	FieldText     = "text"
	FieldImageURL = "imageUrl"
	// FieldLegacyImageURL is the misspelled name older clients wrote and
	// still read. New image messages carry both names.
	FieldLegacyImageURL = "imgaeUrl"
	FieldAudioURL       = "audioUrl"
	FieldUser           = "user"
	FieldCreatedAt      = "createdAt"
)

var ErrNoContent = errors.New("message has no content")

type ContentKind uint8

const (
	ContentText ContentKind = iota + 1
	ContentImage
	ContentAudio
)

func (k ContentKind) String() string {
	switch k {
	case ContentText:
		return "text"
	case ContentImage:
		return "image"
	case ContentAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Content holds exactly one of text, image url or audio url.
type Content struct {
	kind  ContentKind
	value string
}

func TextContent(text string) Content { return Content{kind: ContentText, value: text} }
func ImageContent(url string) Content { return Content{kind: ContentImage, value: url} }
func AudioContent(url string) Content { return Content{kind: ContentAudio, value: url} }
func (c Content) Kind() ContentKind { return c.kind }
func (c Content) Value() string { return c.value }
func (c Content) IsZero() bool { return c.kind == 0 }

func (c Content) Text() string {
	if c.kind != ContentText {
		return ""
	}
	return c.value
}

func (c Content) ImageURL() string {
	if c.kind != ContentImage {
		return ""
	}
	return c.value
}

func (c Content) AudioURL() string {
	if c.kind != ContentAudio {
		return ""
	}
	return c.value
}

// Fields renders the content for a message write. Image content is written
// under both the current and the legacy field name.
func (c Content) Fields() map[string]any {
	switch c.kind {
	case ContentText:
		return map[string]any{FieldText: c.value}
	case ContentImage:
		return map[string]any{FieldImageURL: c.value, FieldLegacyImageURL: c.value}
	case ContentAudio:
		return map[string]any{FieldAudioURL: c.value}
	default:
		return map[string]any{}
	}
}

// ContentFromFields decodes content, trying the current image field before
// the legacy one.
func ContentFromFields(f map[string]any) (Content, error) {
	if v, ok := f[FieldText].(string); ok {
		return TextContent(v), nil
	}
	if v := stringField(f, FieldImageURL); v != "" {
		return ImageContent(v), nil
	}
	if v := stringField(f, FieldLegacyImageURL); v != "" {
		return ImageContent(v), nil
	}
	if v := stringField(f, FieldAudioURL); v != "" {
		return AudioContent(v), nil
	}
	return Content{}, ErrNoContent
}

type Message struct {
	ID        string
	User      User
	CreatedAt time.Time
	Content   Content
}

// NewMessageFields builds a message record. createdAt is whatever the store
// should persist, normally its server timestamp sentinel.
func NewMessageFields(sender User, content Content, createdAt any) map[string]any {
	f := content.Fields()
	f[FieldUser] = sender.Fields()
	f[FieldCreatedAt] = createdAt
	return f
}

// MessageFromFields decodes a message record. A createdAt the store has not
// resolved yet decodes as now.
func MessageFromFields(id string, f map[string]any, now func() time.Time) (Message, error) {
	content, err := ContentFromFields(f)
	if err != nil {
		return Message{}, fmt.Errorf("message %s: %w", id, err)
	}
	m := Message{ID: id, Content: content}
	if u, ok := f[FieldUser].(map[string]any); ok {
		m.User = UserFromFields(u)
	}
	if ts, ok := f[FieldCreatedAt].(time.Time); ok {
		m.CreatedAt = ts
	} else {
		m.CreatedAt = now()
	}
	return m, nil
}

type messageJSON struct {
	ID        string    `json:"id"`
	User      User      `json:"user"`
	CreatedAt time.Time `json:"createdAt"`
	Text      *string   `json:"text,omitempty"`
	ImageURL  *string   `json:"imageUrl,omitempty"`
	AudioURL  *string   `json:"audioUrl,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{ID: m.ID, User: m.User, CreatedAt: m.CreatedAt}
	v := m.Content.Value()
	switch m.Content.Kind() {
	case ContentText:
		out.Text = &v
	case ContentImage:
		out.ImageURL = &v
	case ContentAudio:
		out.AudioURL = &v
	}
	return json.Marshal(out)
}

func (m *Message) UnmarshalJSON(b []byte) error {
	var in messageJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	m.ID, m.User, m.CreatedAt = in.ID, in.User, in.CreatedAt
	switch {
	case in.Text != nil:
		m.Content = TextContent(*in.Text)
	case in.ImageURL != nil:
		m.Content = ImageContent(*in.ImageURL)
	case in.AudioURL != nil:
		m.Content = AudioContent(*in.AudioURL)
	default:
		return ErrNoContent
	}
	return nil
}

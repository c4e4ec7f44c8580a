// Package model holds the platform-neutral conversation records emitted by
// the extraction engine: Conversation, Message, and MediaRef.
package model

import (
	"encoding/json"
	"time"
)

// ContentType enumerates the recognised message payload shapes.
type ContentType string

const (
	ContentText     ContentType = "text"
	ContentImage    ContentType = "image"
	ContentAudio    ContentType = "audio"
	ContentVideo    ContentType = "video"
	ContentFile     ContentType = "file"
	ContentLink     ContentType = "link"
	ContentSticker  ContentType = "sticker"
	ContentLocation ContentType = "location"
	ContentMixed    ContentType = "mixed"
)

// Role enumerates message senders in the neutral model.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// MediaRefType enumerates the kinds of non-text payload a message can carry.
type MediaRefType string

const (
	MediaImage       MediaRefType = "image"
	MediaVoice       MediaRefType = "voice"
	MediaVideo       MediaRefType = "video"
	MediaFile        MediaRefType = "file"
	MediaLink        MediaRefType = "link"
	MediaMiniProgram MediaRefType = "mini_program"
)

// MediaRef describes a non-text attachment referenced by a Message.
//
// It is "build-then-resolve-then-freeze": the row decoder (C3) constructs it,
// the media path resolver (C4) may populate Path, and nothing mutates it
// again after it is attached to a Message. Serialisation is sparse — every
// zero-value field is omitted.
type MediaRef struct {
	Type        MediaRefType `json:"type"`
	Path        string       `json:"path,omitempty"`
	OriginalURL string       `json:"original_url,omitempty"`
	Filename    string       `json:"filename,omitempty"`
	SizeBytes   int64        `json:"size_bytes,omitempty"`
	Description string       `json:"description,omitempty"`
	Summary     string       `json:"summary,omitempty"`
}

// Message is one entry in a Conversation's message list.
type Message struct {
	Role        Role        `json:"role"`
	Content     string      `json:"content"`
	Timestamp   time.Time   `json:"timestamp"`
	MessageID   string      `json:"message_id,omitempty"`
	ContentType ContentType `json:"-"`
	Media       []MediaRef  `json:"media,omitempty"`
}

// MarshalJSON implements sparse serialisation: content_type is omitted when
// it is the default ContentText, matching the reference implementation's
// to_dict() behaviour.
func (m Message) MarshalJSON() ([]byte, error) {
	type alias struct {
		Role        Role        `json:"role"`
		Content     string      `json:"content"`
		Timestamp   time.Time   `json:"timestamp"`
		MessageID   string      `json:"message_id,omitempty"`
		ContentType ContentType `json:"content_type,omitempty"`
		Media       []MediaRef  `json:"media,omitempty"`
	}
	a := alias{
		Role:      m.Role,
		Content:   m.Content,
		Timestamp: m.Timestamp,
		MessageID: m.MessageID,
		Media:     m.Media,
	}
	if m.ContentType != "" && m.ContentType != ContentText {
		a.ContentType = m.ContentType
	}
	return json.Marshal(a)
}

// UnmarshalJSON restores ContentText as the default when content_type is absent.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias struct {
		Role        Role        `json:"role"`
		Content     string      `json:"content"`
		Timestamp   time.Time   `json:"timestamp"`
		MessageID   string      `json:"message_id,omitempty"`
		ContentType ContentType `json:"content_type,omitempty"`
		Media       []MediaRef  `json:"media,omitempty"`
	}
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	m.Role = a.Role
	m.Content = a.Content
	m.Timestamp = a.Timestamp
	m.MessageID = a.MessageID
	m.Media = a.Media
	if a.ContentType == "" {
		m.ContentType = ContentText
	} else {
		m.ContentType = a.ContentType
	}
	return nil
}

// Conversation is an immutable-once-emitted platform-neutral conversation.
type Conversation struct {
	ID           string                 `json:"id"`
	Platform     string                 `json:"platform"`
	Title        string                 `json:"title,omitempty"`
	Participants []string               `json:"participants,omitempty"`
	Messages     []Message              `json:"messages"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// MessageCount returns len(Messages), mirroring the reference model's
// message_count property.
func (c Conversation) MessageCount() int { return len(c.Messages) }

// IndexEntry is the shape written to a platform's index.json, one per
// conversation. First/last message timestamps are derived from the
// conversation's message slice, not stored redundantly elsewhere.
type IndexEntry struct {
	ID               string                 `json:"id"`
	Platform         string                 `json:"platform"`
	Title            string                 `json:"title,omitempty"`
	Participants     []string               `json:"participants,omitempty"`
	MessageCount     int                    `json:"message_count"`
	FirstMessageTime time.Time              `json:"first_message_time,omitempty"`
	LastMessageTime  time.Time              `json:"last_message_time,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// ToIndexEntry derives the index.json entry for a conversation.
func (c Conversation) ToIndexEntry() IndexEntry {
	e := IndexEntry{
		ID:           c.ID,
		Platform:     c.Platform,
		Title:        c.Title,
		Participants: c.Participants,
		MessageCount: len(c.Messages),
		Metadata:     c.Metadata,
	}
	if len(c.Messages) > 0 {
		e.FirstMessageTime = c.Messages[0].Timestamp
		e.LastMessageTime = c.Messages[len(c.Messages)-1].Timestamp
	}
	return e
}

// IsGroup reports whether the conversation's metadata marks it as a group
// chat, defaulting to false when the key is absent or not a bool.
func (c Conversation) IsGroup() bool {
	if c.Metadata == nil {
		return false
	}
	v, ok := c.Metadata["is_group"].(bool)
	return ok && v
}

package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxNameLength is the maximum display name length in runes
	MaxNameLength = 20
	// MaxTextLength is the maximum message text length in runes
	MaxTextLength = 500

	// SystemSenderID is the reserved sender identity of server generated messages
	SystemSenderID = "system"
	// SystemSenderName is the display name of server generated messages
	SystemSenderName = "Sistema"
	// AnonymousName is used when a connection broadcasts before choosing a name
	AnonymousName = "Anónimo"
)

// MessageKind represents the kind of a chat message using a custom enum type for better type safety
type MessageKind string

const (
	MessageKindUser   MessageKind = "user"
	MessageKindSystem MessageKind = "system"
	MessageKindJoin   MessageKind = "join"
	MessageKindLeave  MessageKind = "leave"
)

// String returns the string representation of the MessageKind
func (k MessageKind) String() string {
	return string(k)
}

// IsValid checks if the MessageKind is a valid enum value
func (k MessageKind) IsValid() bool {
	switch k {
	case MessageKindUser, MessageKindSystem, MessageKindJoin, MessageKindLeave:
		return true
	default:
		return false
	}
}

// IsSystem reports whether messages of this kind are emitted by the server itself
func (k MessageKind) IsSystem() bool {
	return k == MessageKindSystem || k == MessageKindJoin || k == MessageKindLeave
}

/** --------------------ENTITIES-------------------- */
// Message is a transient chat message. It only lives for the duration of a fan-out.
type Message struct {
	Text       string      `json:"text"`
	SenderID   string      `json:"senderId"`
	SenderName string      `json:"senderName"`
	Timestamp  time.Time   `json:"timestamp"`
	Kind       MessageKind `json:"kind"`
}

// Validate checks the message invariants. Length limits belong to user
// input (SanitizeText); a private message carries a prefix on top of them.
func (m *Message) Validate() error {
	if !m.Kind.IsValid() {
		return fmt.Errorf("invalid message kind: %s", m.Kind)
	}
	if m.Kind.IsSystem() && m.SenderID != SystemSenderID {
		return fmt.Errorf("%s message must be sent by %q, got %q", m.Kind, SystemSenderID, m.SenderID)
	}
	if m.Text == "" {
		return fmt.Errorf("message text is empty")
	}
	return nil
}

/** -------------------- DTOs -------------------- */
// MessageRequest is what a client may submit for broadcast.
// Any other field present in the payload is dropped during decoding.
type MessageRequest struct {
	Text       string `json:"text"`
	SenderName string `json:"senderName,omitempty"`
}

// PrivateMessageRequest targets a single live connection
type PrivateMessageRequest struct {
	TargetID string         `json:"targetId"`
	Message  MessageRequest `json:"message"`
}

/** -------------------- Constructors -------------------- */

// NewSystemMessage creates a server generated message of the given kind
func NewSystemMessage(kind MessageKind, text string, at time.Time) Message {
	return Message{
		Text:       text,
		SenderID:   SystemSenderID,
		SenderName: SystemSenderName,
		Timestamp:  at.UTC(),
		Kind:       kind,
	}
}

// NewUserMessage creates a user authored message
func NewUserMessage(senderID, senderName, text string, at time.Time) Message {
	return Message{
		Text:       text,
		SenderID:   senderID,
		SenderName: senderName,
		Timestamp:  at.UTC(),
		Kind:       MessageKindUser,
	}
}

// System texts
const (
	textInvalidName = "Por favor ingresa un nombre válido"
	textWelcome     = "¡Bienvenido al chat, %s!"
	textJoined      = "%s se unió al chat"
	textLeft        = "%s abandonó el chat"
	textPrivate     = "[Privado de %s] %s"
)

// InvalidNameText is sent privately when a display name is rejected
func InvalidNameText() string { return textInvalidName }

// WelcomeText greets a connection that just chose a name
func WelcomeText(name string) string { return fmt.Sprintf(textWelcome, name) }

func JoinedText(name string) string { return fmt.Sprintf(textJoined, name) }

func LeftText(name string) string { return fmt.Sprintf(textLeft, name) }

// PrivateText marks a direct message with its origin
func PrivateText(from, text string) string { return fmt.Sprintf(textPrivate, from, text) }

// SanitizeName trims the raw name and truncates it to MaxNameLength runes.
// The boolean is false when nothing is left after trimming.
func SanitizeName(raw string) (string, bool) {
	return trimAndTruncate(raw, MaxNameLength)
}

// SanitizeText trims the raw text and truncates it to MaxTextLength runes
func SanitizeText(raw string) (string, bool) {
	return trimAndTruncate(raw, MaxTextLength)
}

func trimAndTruncate(raw string, limit int) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if utf8.RuneCountInString(s) > limit {
		s = string([]rune(s)[:limit])
	}
	return s, true
}

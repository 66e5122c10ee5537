package models

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"plain", "Ana", "Ana", true},
		{"trimmed", "  Luis \t", "Luis", true},
		{"empty", "", "", false},
		{"only spaces", "   \n ", "", false},
		{"truncated", strings.Repeat("x", 25), strings.Repeat("x", 20), true},
		{"truncated by rune", strings.Repeat("ñ", 30), strings.Repeat("ñ", 20), true},
		{"exact limit", strings.Repeat("a", 20), strings.Repeat("a", 20), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SanitizeName(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxNameLength)
		})
	}
}

func TestSanitizeText(t *testing.T) {
	got, ok := SanitizeText("  hola  ")
	require.True(t, ok)
	require.Equal(t, "hola", got)

	got, ok = SanitizeText(strings.Repeat("é", 600))
	require.True(t, ok)
	require.Equal(t, MaxTextLength, utf8.RuneCountInString(got))

	_, ok = SanitizeText(" \t ")
	require.False(t, ok)
}

func TestMessageValidate(t *testing.T) {
	now := time.Now()

	msg := NewSystemMessage(MessageKindJoin, JoinedText("Ana"), now)
	require.NoError(t, msg.Validate())
	require.Equal(t, "Ana se unió al chat", msg.Text)

	spoofed := NewUserMessage("abc", "Ana", "hola", now)
	spoofed.Kind = MessageKindLeave
	require.Error(t, spoofed.Validate(), "leave messages must come from the system sender")

	bad := NewUserMessage("abc", "Ana", "hola", now)
	bad.Kind = "message"
	require.Error(t, bad.Validate())

	empty := NewUserMessage("abc", "Ana", "", now)
	require.Error(t, empty.Validate())
}

func TestEnvelopeRoundTrip(t *testing.T) {
	frame, err := EncodeEvent(EventUserList, []Participant{{ID: "1", Name: "Ana"}})
	require.NoError(t, err)

	env, err := DecodeEnvelope(frame)
	require.NoError(t, err)
	require.Equal(t, EventUserList, env.Event)

	var roster []Participant
	require.NoError(t, env.Decode(&roster))
	require.Equal(t, []Participant{{ID: "1", Name: "Ana"}}, roster)
}

func TestEnvelopeWithoutPayload(t *testing.T) {
	frame, err := EncodeEvent(EventGetUserList, nil)
	require.NoError(t, err)
	require.JSONEq(t, `{"event":"getUserList"}`, string(frame))

	env, err := DecodeEnvelope(frame)
	require.NoError(t, err)
	require.Error(t, env.Decode(&struct{}{}))

	_, err = DecodeEnvelope([]byte(`{"data":1}`))
	require.Error(t, err)
}

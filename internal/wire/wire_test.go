package wire

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keikkaduuni/internal/domain"
)

func TestRooms(t *testing.T) {
	assert.Equal(t, "user-7", UserRoom(7))
	assert.Equal(t, "conversation-12", ConversationRoom(12))
}

func TestEnvelopeFrame(t *testing.T) {
	env, err := NewEnvelope(EventConversationUnread, ConversationUnread{ConversationID: 3})
	require.NoError(t, err)

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"conversation-unread","data":{"conversationId":3}}`, string(raw))
}

func TestFromMessageEmptyAttachments(t *testing.T) {
	m := FromMessage(&domain.Message{ID: 1, ConversationID: 2, SenderID: 3, CreatedAt: time.Now()})

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"attachments":[]`)
}

func TestFromUserHidesEmail(t *testing.T) {
	u := &domain.User{ID: 1, Name: "Aino", Email: "aino@example.com"}
	assert.Empty(t, FromUser(u, false).Email)
	assert.Equal(t, "aino@example.com", FromUser(u, true).Email)
}

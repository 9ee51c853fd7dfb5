package conversation

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation between a channel identity (an end
// customer's WhatsApp number) and a business.
type Turn struct {
	ID         int64     `json:"id"`
	BusinessID uuid.UUID `json:"business_id"`
	// ChannelIdentity is the sender's phone number on the chat channel.
	ChannelIdentity string    `json:"channel_identity"`
	Role            Role      `json:"role"`
	Text            string    `json:"text"`
	CreatedAt       time.Time `json:"created_at"`
}

// HistoryWindow is the number of most recent turns handed to
// classification. Older turns are excluded to bound prompt cost.
const HistoryWindow = 6

package types

import (
	"fmt"
	"time"
)

// Role identifies who authored a message.
type Role int

const (
	RoleHuman Role = iota + 1
	RoleAssistant
)

func (r Role) String() string {
	switch r {
	case RoleHuman:
		return "human"
	case RoleAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}

func (r Role) MarshalText() ([]byte, error) {
	if r != RoleHuman && r != RoleAssistant {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText accepts both our names and the provider aliases ("user", "ai").
func (r *Role) UnmarshalText(text []byte) error {
	switch string(text) {
	case "human", "user":
		*r = RoleHuman
	case "assistant", "ai":
		*r = RoleAssistant
	default:
		return fmt.Errorf("invalid role %q", string(text))
	}
	return nil
}

// Message represents a single message in the conversation
type Message struct {
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}

func NewHumanMessage(content string) Message {
	return Message{Role: RoleHuman, Content: content, CreatedAt: time.Now().Unix()}
}

func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content, CreatedAt: time.Now().Unix()}
}

// Handle stream responses
type StreamHandler func(delta string)

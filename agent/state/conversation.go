package state

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultWindowSize      = 12
	DefaultMaxMessageChars = 1000
	TruncationMarker       = "... [truncated]"
)

type Role string

const (
	RoleHuman     Role = "human"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationContext is the durable per-user record. ThreadID is the user id.
type ConversationContext struct {
	ThreadID        string         `json:"thread_id"`
	RecentMessages  []Message      `json:"recent_messages"`
	CustomerContext map[string]any `json:"customer_context"`
	SessionMetadata map[string]any `json:"session_metadata"`
	LastActivity    time.Time      `json:"last_activity"`
	CreatedAt       time.Time      `json:"created_at"`
}

var (
	ErrInvalidRole    = errors.New("message role is invalid")
	ErrWindowOverflow = errors.New("recent messages exceed window")
)

func NewConversation(threadID string, now time.Time) *ConversationContext {
	return &ConversationContext{
		ThreadID:        threadID,
		RecentMessages:  make([]Message, 0, DefaultWindowSize),
		CustomerContext: make(map[string]any, 4),
		SessionMetadata: make(map[string]any, 2),
		LastActivity:    now.UTC(),
		CreatedAt:       now.UTC(),
	}
}

func (c *ConversationContext) EnsureMaps() {
	if c.CustomerContext == nil {
		c.CustomerContext = make(map[string]any, 4)
	}
	if c.SessionMetadata == nil {
		c.SessionMetadata = make(map[string]any, 2)
	}
}

func (c *ConversationContext) Touch(now time.Time) {
	c.LastActivity = now.UTC()
}

// IsNew reports whether nothing has been said in this conversation yet.
func (c *ConversationContext) IsNew() bool {
	return c == nil || len(c.RecentMessages) == 0
}

// Append adds msg and evicts the oldest entries beyond window.
func (c *ConversationContext) Append(msg Message, window, maxChars int) {
	if window <= 0 {
		window = DefaultWindowSize
	}
	msg.Content = TruncateContent(msg.Content, maxChars)
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}

	c.RecentMessages = append(c.RecentMessages, msg)
	if overflow := len(c.RecentMessages) - window; overflow > 0 {
		c.RecentMessages = slices.Clone(c.RecentMessages[overflow:])
	}
	c.Touch(msg.Timestamp)
}

// SetCustomerValue upserts key; last write wins.
func (c *ConversationContext) SetCustomerValue(key string, value any, now time.Time) {
	c.EnsureMaps()
	c.CustomerContext[key] = value
	c.Touch(now)
}

func (c *ConversationContext) CustomerContextKeys() []string {
	keys := make([]string, 0, len(c.CustomerContext))
	for k := range c.CustomerContext {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Clone copies messages and the top level of both maps. Map values are
// replaced, never mutated in place, so a shallow copy is enough.
func (c *ConversationContext) Clone() *ConversationContext {
	if c == nil {
		return nil
	}
	out := *c
	out.RecentMessages = slices.Clone(c.RecentMessages)
	out.CustomerContext = maps.Clone(c.CustomerContext)
	out.SessionMetadata = maps.Clone(c.SessionMetadata)
	out.EnsureMaps()
	return &out
}

func (c *ConversationContext) Validate(window int) error {
	if strings.TrimSpace(c.ThreadID) == "" {
		return ErrInvalidThread
	}
	if window > 0 && len(c.RecentMessages) > window {
		return fmt.Errorf("%w: %d > %d", ErrWindowOverflow, len(c.RecentMessages), window)
	}
	for i, m := range c.RecentMessages {
		if m.Role != RoleHuman && m.Role != RoleAssistant {
			return fmt.Errorf("%w: index=%d role=%q", ErrInvalidRole, i, m.Role)
		}
	}
	return nil
}

// TruncateContent cuts content to maxChars runes and appends TruncationMarker.
func TruncateContent(content string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(content) <= maxChars {
		return content
	}
	runes := []rune(content)
	return string(runes[:maxChars]) + TruncationMarker
}

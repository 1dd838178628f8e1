package core

import (
	"context"
	"strings"
	"time"
)

// State is the lifecycle state of a scheduled message.
type State string

const (
	StatePending   State = "pending"
	StateSent      State = "sent"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s State) Terminal() bool {
	switch s {
	case StateSent, StateCancelled, StateFailed:
		return true
	}
	return false
}

// Valid reports whether s is one of the four known states.
func (s State) Valid() bool {
	return s == StatePending || s.Terminal()
}

// Owner identifies the Slack user and workspace a credential or message belongs to.
type Owner struct {
	UserID string `json:"userId"`
	TeamID string `json:"teamId"`
}

func (o Owner) validate() *ValidationError {
	v := &ValidationError{}
	if strings.TrimSpace(o.UserID) == "" {
		v.add("userId")
	}
	if strings.TrimSpace(o.TeamID) == "" {
		v.add("teamId")
	}
	return v.orNil()
}

// Validate checks that both halves of the owner key are present.
func (o Owner) Validate() error {
	if v := o.validate(); v != nil {
		return v
	}
	return nil
}

// Credential is a bearer token issued to an owner by the Slack OAuth flow.
type Credential struct {
	Owner
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expiresAt"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Expired reports whether the credential can no longer be used at now.
// A credential expiring exactly at now is expired.
func (c Credential) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// ScheduledMessage is a durable request to post Text to ChannelID at ScheduledFor.
type ScheduledMessage struct {
	ID int64 `json:"id"`
	Owner
	ChannelID    string     `json:"channelId"`
	Text         string     `json:"text"`
	ScheduledFor time.Time  `json:"scheduledFor"`
	State        State      `json:"state"`
	Attempts     int        `json:"attempts"`
	LastError    string     `json:"lastError,omitempty"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// NewMessage carries the caller-supplied fields of a message to schedule.
type NewMessage struct {
	Owner
	ChannelID    string
	Text         string
	ScheduledFor time.Time
}

// Validate checks required fields and that ScheduledFor is strictly after now.
func (m NewMessage) Validate(now time.Time) error {
	v := m.Owner.validate()
	if v == nil {
		v = &ValidationError{}
	}
	if strings.TrimSpace(m.ChannelID) == "" {
		v.add("channelId")
	}
	if strings.TrimSpace(m.Text) == "" {
		v.add("text")
	}
	if m.ScheduledFor.IsZero() {
		v.add("scheduledFor")
	} else if !m.ScheduledFor.After(now) {
		v.Reason = "scheduled time must be in the future"
	}
	if v = v.orNil(); v != nil {
		return v
	}
	return nil
}

// Channel is the normalized projection of a Slack conversation.
type Channel struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsPrivate bool   `json:"is_private"`
}

// CredentialStore persists one credential per owner.
type CredentialStore interface {
	UpsertCredential(ctx context.Context, c Credential) error
	// GetCredential reports ok=false when the owner has no credential.
	GetCredential(ctx context.Context, owner Owner) (Credential, bool, error)
}

// MessageStore persists scheduled messages. Every transition is a conditional
// update guarded by state = pending.
type MessageStore interface {
	CreateMessage(ctx context.Context, m NewMessage) (ScheduledMessage, error)
	GetMessage(ctx context.Context, id int64) (ScheduledMessage, error)
	ListPending(ctx context.Context, owner Owner) ([]ScheduledMessage, error)
	// FindDue returns pending messages with ScheduledFor <= now. limit <= 0 means no limit.
	FindDue(ctx context.Context, now time.Time, limit int) ([]ScheduledMessage, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
	Cancel(ctx context.Context, id int64) error
	// RecordAttempt notes a sweep attempt that did not deliver. It is a no-op
	// once the message left the pending state.
	RecordAttempt(ctx context.Context, id int64, reason string) error
}

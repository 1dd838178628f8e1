package db

import (
	"fmt"
	"time"

	"SlackScheduler/internal/core"

	"gorm.io/gorm"
)

type Credential struct {
	ID           uint      `gorm:"primaryKey"`
	UserID       string    `gorm:"uniqueIndex:idx_credential_owner;not null"`
	TeamID       string    `gorm:"uniqueIndex:idx_credential_owner;not null"`
	AccessToken  string    `gorm:"not null"`
	RefreshToken string    `gorm:"not null;default:''"`
	ExpiresAt    time.Time `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (c Credential) toCore() core.Credential {
	return core.Credential{
		Owner:        core.Owner{UserID: c.UserID, TeamID: c.TeamID},
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		ExpiresAt:    c.ExpiresAt.UTC(),
		CreatedAt:    c.CreatedAt.UTC(),
		UpdatedAt:    c.UpdatedAt.UTC(),
	}
}

type ScheduledMessage struct {
	ID           int64     `gorm:"primaryKey;autoIncrement"`
	UserID       string    `gorm:"index:idx_msg_owner;not null"`
	TeamID       string    `gorm:"index:idx_msg_owner;not null"`
	ChannelID    string    `gorm:"not null"`
	Text         string    `gorm:"type:text;not null"`
	ScheduledFor time.Time `gorm:"index:idx_msg_due,priority:2;not null"`
	State        string    `gorm:"index:idx_msg_due,priority:1;size:16;not null;default:pending"`
	Attempts     int       `gorm:"not null;default:0"`
	LastError    string    `gorm:"type:text;not null;default:''"`
	SentAt       *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AfterFind rejects rows whose state is not one the lifecycle knows about.
func (m *ScheduledMessage) AfterFind(*gorm.DB) error {
	if !core.State(m.State).Valid() {
		return fmt.Errorf("message %d: unknown state %q", m.ID, m.State)
	}
	return nil
}

func (m ScheduledMessage) toCore() core.ScheduledMessage {
	out := core.ScheduledMessage{
		ID:           m.ID,
		Owner:        core.Owner{UserID: m.UserID, TeamID: m.TeamID},
		ChannelID:    m.ChannelID,
		Text:         m.Text,
		ScheduledFor: m.ScheduledFor.UTC(),
		State:        core.State(m.State),
		Attempts:     m.Attempts,
		LastError:    m.LastError,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
	if m.SentAt != nil {
		t := m.SentAt.UTC()
		out.SentAt = &t
	}
	return out
}

package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageValidate(t *testing.T) {
	now := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	valid := NewMessage{
		Owner:        Owner{UserID: "U1", TeamID: "T1"},
		ChannelID:    "C1",
		Text:         "hello",
		ScheduledFor: now.Add(5 * time.Minute),
	}

	tests := []struct {
		name    string
		mutate  func(m *NewMessage)
		missing []string
		reason  bool
	}{
		{name: "valid", mutate: func(m *NewMessage) {}},
		{name: "missing user", mutate: func(m *NewMessage) { m.UserID = "" }, missing: []string{"userId"}},
		{name: "blank text", mutate: func(m *NewMessage) { m.Text = "   " }, missing: []string{"text"}},
		{name: "missing everything", mutate: func(m *NewMessage) { *m = NewMessage{} },
			missing: []string{"userId", "teamId", "channelId", "text", "scheduledFor"}},
		{name: "scheduled now", mutate: func(m *NewMessage) { m.ScheduledFor = now }, reason: true},
		{name: "scheduled in past", mutate: func(m *NewMessage) { m.ScheduledFor = now.Add(-time.Second) }, reason: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := valid
			tt.mutate(&m)
			err := m.Validate(now)
			if tt.missing == nil && !tt.reason {
				require.NoError(t, err)
				return
			}
			var v *ValidationError
			require.ErrorAs(t, err, &v)
			assert.Equal(t, tt.missing, v.Missing)
			assert.Equal(t, tt.reason, v.Reason != "")
			assert.Equal(t, "validation", Kind(err))
		})
	}
}

func TestCredentialExpired(t *testing.T) {
	now := time.Now()
	assert.True(t, Credential{ExpiresAt: now}.Expired(now))
	assert.True(t, Credential{ExpiresAt: now.Add(-time.Minute)}.Expired(now))
	assert.False(t, Credential{ExpiresAt: now.Add(time.Minute)}.Expired(now))
}

func TestStateTerminal(t *testing.T) {
	assert.False(t, StatePending.Terminal())
	assert.True(t, StateSent.Terminal())
	assert.True(t, StateCancelled.Terminal())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, State("bogus").Valid())
}

func TestTerminalErrorMatching(t *testing.T) {
	err := fmt.Errorf("cancel: %w", &TerminalError{ID: 7, State: StateSent})

	assert.ErrorIs(t, err, ErrAlreadyTerminal)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NotErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "already been sent")

	var te *TerminalError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, StateSent, te.State)
	assert.Equal(t, "already_terminal", Kind(err))
}

func TestResultErr(t *testing.T) {
	assert.NoError(t, Result{Outcome: Delivered}.Err())

	err := Result{Outcome: Rejected, Reason: "not_in_channel"}.Err()
	assert.ErrorIs(t, err, ErrRejected)
	assert.EqualError(t, err, "rejected: not_in_channel")
	assert.Equal(t, "rejected", Kind(err))

	assert.ErrorIs(t, Result{Outcome: AuthExpired}.Err(), ErrAuthExpired)
	assert.ErrorIs(t, Result{Outcome: Transient, Reason: "timeout"}.Err(), ErrTransient)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "not_found", Kind(fmt.Errorf("get: %w", ErrNotFound)))
	assert.Equal(t, "credential_expired", Kind(ErrCredentialExpired))
	assert.Equal(t, "internal", Kind(errors.New("boom")))
}

package api

import (
	"SlackScheduler/internal/core"
)

type SendRequest struct {
	UserID    string `json:"userId"`
	TeamID    string `json:"teamId"`
	ChannelID string `json:"channelId"`
	Text      string `json:"text"`
}

func (r SendRequest) owner() core.Owner {
	return core.Owner{UserID: r.UserID, TeamID: r.TeamID}
}

// ScheduleRequest carries scheduledFor as text. Timezone, when set, is the
// IANA zone used for a scheduledFor without an offset.
type ScheduleRequest struct {
	SendRequest
	ScheduledFor string `json:"scheduledFor"`
	Timezone     string `json:"timezone,omitempty"`
}

type SendResult struct {
	Channel string `json:"channel"`
	Ts      string `json:"ts"`
}

// Response is the envelope of every JSON reply.
type Response struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Data    any        `json:"data,omitempty"`
	Error   string     `json:"error,omitempty"`
	Kind    string     `json:"kind,omitempty"`
	State   core.State `json:"state,omitempty"`
}

// apiError gives a sentinel a user-facing message while keeping it matchable.
type apiError struct {
	msg string
	err error
}

func (e *apiError) Error() string { return e.msg }
func (e *apiError) Unwrap() error { return e.err }

var (
	errNotConnected    error = &apiError{msg: msgNotConnected, err: core.ErrNotFound}
	errTokenExpired    error = &apiError{msg: msgTokenExpired, err: core.ErrCredentialExpired}
	errMessageNotFound error = &apiError{msg: msgMessageNotFound, err: core.ErrNotFound}
)

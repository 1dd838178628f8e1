package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"SlackScheduler/internal/core"
	"SlackScheduler/metrics"
	"SlackScheduler/utils"

	"github.com/rs/zerolog/log"
)

// Slack is the subset of the delivery client the command surface needs.
type Slack interface {
	Post(ctx context.Context, token, channel, text string) core.Result
	ListChannels(ctx context.Context, token string) ([]core.Channel, error)
	AuthorizeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (core.Credential, error)
	Refresh(ctx context.Context, refreshToken string) (core.Credential, error)
}

type ChannelCache interface {
	Get(ctx context.Context, key string) ([]core.Channel, bool)
	Set(ctx context.Context, key string, chans []core.Channel)
}

type ServiceOption func(*Service)

// WithChannelCache serves channel listings through cache.
func WithChannelCache(cache ChannelCache) ServiceOption {
	return func(s *Service) { s.cache = cache }
}

func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service implements the user-facing operations over the stores and Slack.
type Service struct {
	creds    core.CredentialStore
	messages core.MessageStore
	slack    Slack
	cache    ChannelCache
	now      func() time.Time
}

func NewService(creds core.CredentialStore, messages core.MessageStore, slack Slack, opts ...ServiceOption) *Service {
	s := &Service{creds: creds, messages: messages, slack: slack, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireFields(pairs ...string) error {
	v := &core.ValidationError{}
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			v.Missing = append(v.Missing, pairs[i])
		}
	}
	if len(v.Missing) == 0 {
		return nil
	}
	return v
}

func (s *Service) credential(ctx context.Context, owner core.Owner) (core.Credential, error) {
	cred, ok, err := s.creds.GetCredential(ctx, owner)
	if err != nil {
		return core.Credential{}, err
	}
	if !ok {
		return core.Credential{}, errNotConnected
	}
	return cred, nil
}

// SendNow posts immediately with the owner's credential. Nothing is persisted.
func (s *Service) SendNow(ctx context.Context, req SendRequest) (core.Result, error) {
	if err := requireFields("userId", req.UserID, "teamId", req.TeamID, "channelId", req.ChannelID, "text", req.Text); err != nil {
		return core.Result{}, err
	}
	cred, err := s.credential(ctx, req.owner())
	if err != nil {
		return core.Result{}, err
	}
	if cred.Expired(s.now()) {
		return core.Result{}, errTokenExpired
	}

	res := s.slack.Post(ctx, cred.AccessToken, req.ChannelID, req.Text)
	metrics.SendNowTotal.WithLabelValues(res.Outcome.String()).Inc()
	if !res.Delivered() {
		log.Warn().
			Str("team_id", req.TeamID).
			Str("user_id", req.UserID).
			Str("channel_id", req.ChannelID).
			Str("outcome", res.Outcome.String()).
			Str("reason", res.Reason).
			Msg("send now not delivered")
		return res, res.Err()
	}
	return res, nil
}

// Schedule stores a pending message for later delivery. The owner must have
// connected a workspace, though the credential may expire before delivery.
func (s *Service) Schedule(ctx context.Context, m core.NewMessage) (core.ScheduledMessage, error) {
	if err := m.Validate(s.now()); err != nil {
		return core.ScheduledMessage{}, err
	}
	if _, err := s.credential(ctx, m.Owner); err != nil {
		return core.ScheduledMessage{}, err
	}
	msg, err := s.messages.CreateMessage(ctx, m)
	if err != nil {
		return core.ScheduledMessage{}, err
	}
	log.Info().
		Int64("message_id", msg.ID).
		Str("team_id", msg.TeamID).
		Str("user_id", msg.UserID).
		Str("channel_id", msg.ChannelID).
		Time("scheduled_for", msg.ScheduledFor).
		Msg("message scheduled")
	return msg, nil
}

// List returns the owner's pending messages, soonest first.
func (s *Service) List(ctx context.Context, owner core.Owner) ([]core.ScheduledMessage, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListPending(ctx, owner)
	if err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []core.ScheduledMessage{}
	}
	return msgs, nil
}

// Cancel moves a pending message to cancelled. A terminal message yields a
// *core.TerminalError naming its state.
func (s *Service) Cancel(ctx context.Context, id int64) error {
	err := s.messages.Cancel(ctx, id)
	switch {
	case err == nil:
		log.Info().Int64("message_id", id).Msg("message cancelled")
		return nil
	case errors.Is(err, core.ErrNotFound):
		return errMessageNotFound
	}
	return err
}

// ListChannels lists the conversations the owner's token can see.
func (s *Service) ListChannels(ctx context.Context, owner core.Owner) ([]core.Channel, error) {
	if err := owner.Validate(); err != nil {
		return nil, err
	}
	cred, err := s.credential(ctx, owner)
	if err != nil {
		return nil, err
	}

	var key string
	if s.cache != nil {
		key = utils.ChannelCacheKey(owner, cred.AccessToken)
		if chans, ok := s.cache.Get(ctx, key); ok {
			return chans, nil
		}
	}
	chans, err := s.slack.ListChannels(ctx, cred.AccessToken)
	if err != nil {
		return nil, err
	}
	if chans == nil {
		chans = []core.Channel{}
	}
	if s.cache != nil {
		s.cache.Set(ctx, key, chans)
	}
	return chans, nil
}

// RefreshCredential renews the owner's token with the stored refresh token.
// It is never invoked by the scheduler.
func (s *Service) RefreshCredential(ctx context.Context, owner core.Owner) (core.Credential, error) {
	if err := owner.Validate(); err != nil {
		return core.Credential{}, err
	}
	cred, err := s.credential(ctx, owner)
	if err != nil {
		return core.Credential{}, err
	}
	if cred.RefreshToken == "" {
		return core.Credential{}, core.ErrNoRefreshToken
	}
	fresh, err := s.slack.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return core.Credential{}, err
	}
	fresh.Owner = owner
	if err := s.creds.UpsertCredential(ctx, fresh); err != nil {
		return core.Credential{}, err
	}
	log.Info().Str("team_id", owner.TeamID).Str("user_id", owner.UserID).Time("expires_at", fresh.ExpiresAt).Msg("credential refreshed")
	return fresh, nil
}

// InstallURL is the Slack authorize URL for a new installation.
func (s *Service) InstallURL(state string) string {
	return s.slack.AuthorizeURL(state)
}

// StoreAuthorization completes the OAuth flow and records the credential.
func (s *Service) StoreAuthorization(ctx context.Context, code string) (core.Credential, error) {
	cred, err := s.slack.ExchangeCode(ctx, code)
	if err != nil {
		return core.Credential{}, err
	}
	if err := s.creds.UpsertCredential(ctx, cred); err != nil {
		return core.Credential{}, err
	}
	log.Info().Str("team_id", cred.TeamID).Str("user_id", cred.UserID).Time("expires_at", cred.ExpiresAt).Msg("slack workspace connected")
	return cred, nil
}

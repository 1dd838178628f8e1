package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"SlackScheduler/internal/core"
	"SlackScheduler/internal/logging"
	"SlackScheduler/metrics"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultInterval = time.Minute
	DefaultWorkers  = 4
	DefaultBatch    = 100

	// persistTimeout bounds the state write that follows a post attempt.
	persistTimeout = 10 * time.Second

	reasonNoCredential = "no credential"
	reasonExpired      = "credential expired"
)

// Poster delivers one message with a bearer token.
type Poster interface {
	Post(ctx context.Context, token, channel, text string) core.Result
}

// Report summarizes one sweep.
type Report struct {
	RunID       string
	Due         int
	Delivered   int
	Rejected    int
	Deferred    int
	AuthExpired int
	Transient   int
	Conflicts   int
	Errors      int
}

type Option func(*Scheduler)

func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithBatch caps how many due messages one sweep picks up.
func WithBatch(n int) Option {
	return func(s *Scheduler) { s.batch = n }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

// Scheduler periodically delivers due pending messages.
type Scheduler struct {
	store  core.MessageStore
	creds  core.CredentialStore
	poster Poster

	interval time.Duration
	workers  int
	batch    int
	now      func() time.Time
	log      zerolog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
}

func New(store core.MessageStore, creds core.CredentialStore, poster Poster, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:    store,
		creds:    creds,
		poster:   poster,
		interval: DefaultInterval,
		workers:  DefaultWorkers,
		batch:    DefaultBatch,
		now:      time.Now,
		log:      log.Logger.With().Str("component", "scheduler").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs one sweep immediately and then one every interval. Sweeps never
// overlap. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	cl := logging.CronLogger{L: s.log}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.cron.Schedule(cron.Every(s.interval), cron.FuncJob(func() { s.tick(ctx) }))
	s.cron.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tick(ctx)
	}()
	s.log.Info().Dur("interval", s.interval).Int("workers", s.workers).Msg("scheduler started")
}

// Stop halts the ticker, cancels the in-flight sweep and waits for it to
// return. Posts already handed to Slack still get their outcome recorded;
// due records the sweep had not reached stay pending.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	done := c.Stop()
	cancel()
	<-done.Done()
	s.wg.Wait()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) tick(ctx context.Context) {
	// The immediate run and the first cron tick can race on short intervals.
	if !s.running.CompareAndSwap(false, true) {
		return
	}
	defer s.running.Store(false)

	if ctx.Err() != nil {
		return
	}
	if _, err := s.RunOnce(ctx, s.now()); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error().Err(err).Msg("sweep failed")
	}
}

// RunOnce performs a single sweep at now. It returns an error only when the
// due set could not be read; per-record failures are counted in the report.
func (s *Scheduler) RunOnce(ctx context.Context, now time.Time) (Report, error) {
	start := time.Now()
	rep := Report{RunID: uuid.NewString()}
	logger := s.log.With().Str("run_id", rep.RunID).Logger()

	due, err := s.store.FindDue(ctx, now, s.batch)
	if err != nil {
		metrics.SweepsTotal.WithLabelValues("error").Inc()
		return rep, err
	}
	rep.Due = len(due)
	metrics.DueMessages.Set(float64(len(due)))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, m := range due {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res := s.deliver(gctx, logger, m, now)
			mu.Lock()
			rep.add(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	metrics.SweepsTotal.WithLabelValues("ok").Inc()
	if rep.Due > 0 {
		logger.Info().
			Int("due", rep.Due).
			Int("delivered", rep.Delivered).
			Int("rejected", rep.Rejected).
			Int("deferred", rep.Deferred).
			Int("auth_expired", rep.AuthExpired).
			Int("transient", rep.Transient).
			Int("conflicts", rep.Conflicts).
			Int("errors", rep.Errors).
			Msg("sweep complete")
	}
	return rep, nil
}

type result int

const (
	resDelivered result = iota
	resRejected
	resDeferred
	resAuthExpired
	resTransient
	resConflict
	resError
)

func (r *Report) add(res result) {
	switch res {
	case resDelivered:
		r.Delivered++
	case resRejected:
		r.Rejected++
	case resDeferred:
		r.Deferred++
	case resAuthExpired:
		r.AuthExpired++
	case resTransient:
		r.Transient++
	case resConflict:
		r.Conflicts++
	default:
		r.Errors++
	}
}

func (s *Scheduler) deliver(ctx context.Context, logger zerolog.Logger, m core.ScheduledMessage, now time.Time) result {
	l := logger.With().
		Int64("message_id", m.ID).
		Str("team_id", m.TeamID).
		Str("user_id", m.UserID).
		Str("channel_id", m.ChannelID).
		Logger()

	cred, ok, err := s.creds.GetCredential(ctx, m.Owner)
	if err != nil {
		l.Error().Err(err).Msg("load credential")
		return resError
	}
	if !ok {
		l.Warn().Msg("no credential, leaving pending")
		return s.postpone(ctx, l, m.ID, reasonNoCredential, resDeferred)
	}
	if cred.Expired(now) {
		l.Warn().Time("expires_at", cred.ExpiresAt).Msg("credential expired, leaving pending")
		return s.postpone(ctx, l, m.ID, reasonExpired, resDeferred)
	}

	res := s.poster.Post(ctx, cred.AccessToken, m.ChannelID, m.Text)
	metrics.DeliveriesTotal.WithLabelValues(res.Outcome.String()).Inc()

	// Outcomes are recorded even when Stop cancelled ctx mid-post.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	switch res.Outcome {
	case core.Delivered:
		if err := s.store.MarkSent(wctx, m.ID); err != nil {
			var te *core.TerminalError
			if errors.As(err, &te) {
				// Cancelled or already marked while the post was in flight.
				l.Warn().Str("state", string(te.State)).Msg("delivered but record left pending first")
				return resConflict
			}
			l.Error().Err(err).Msg("mark sent")
			return resError
		}
		l.Info().Str("ts", res.Ts).Msg("message delivered")
		return resDelivered
	case core.Rejected:
		if err := s.store.MarkFailed(wctx, m.ID, res.Reason); err != nil {
			if errors.Is(err, core.ErrAlreadyTerminal) {
				return resConflict
			}
			l.Error().Err(err).Msg("mark failed")
			return resError
		}
		l.Warn().Str("reason", res.Reason).Msg("message rejected by slack")
		return resRejected
	case core.AuthExpired:
		l.Warn().Str("reason", res.Reason).Msg("slack refused credential, leaving pending")
		return s.postpone(wctx, l, m.ID, res.Reason, resAuthExpired)
	default:
		l.Warn().Str("reason", res.Reason).Msg("transient delivery failure, will retry")
		return s.postpone(wctx, l, m.ID, res.Reason, resTransient)
	}
}

func (s *Scheduler) postpone(ctx context.Context, l zerolog.Logger, id int64, reason string, res result) result {
	if err := s.store.RecordAttempt(ctx, id, reason); err != nil {
		l.Error().Err(err).Msg("record attempt")
		return resError
	}
	return res
}

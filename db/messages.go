package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SlackScheduler/internal/core"

	"gorm.io/gorm"
)

func (s *Store) CreateMessage(ctx context.Context, m core.NewMessage) (core.ScheduledMessage, error) {
	now := s.now().UTC()
	if err := m.Validate(now); err != nil {
		return core.ScheduledMessage{}, err
	}
	row := ScheduledMessage{
		UserID:       m.UserID,
		TeamID:       m.TeamID,
		ChannelID:    m.ChannelID,
		Text:         m.Text,
		ScheduledFor: m.ScheduledFor.UTC(),
		State:        string(core.StatePending),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return core.ScheduledMessage{}, fmt.Errorf("CreateMessage: team %s, user %s: %w", m.TeamID, m.UserID, err)
	}
	return row.toCore(), nil
}

func (s *Store) GetMessage(ctx context.Context, id int64) (core.ScheduledMessage, error) {
	var row ScheduledMessage
	err := s.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.ScheduledMessage{}, fmt.Errorf("GetMessage %d: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.ScheduledMessage{}, fmt.Errorf("GetMessage %d: %w", id, err)
	}
	return row.toCore(), nil
}

func (s *Store) ListPending(ctx context.Context, owner core.Owner) ([]core.ScheduledMessage, error) {
	var rows []ScheduledMessage
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND team_id = ? AND state = ?", owner.UserID, owner.TeamID, string(core.StatePending)).
		Order("scheduled_for asc, id asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("ListPending: team %s, user %s: %w", owner.TeamID, owner.UserID, err)
	}
	return toCoreMessages(rows), nil
}

func (s *Store) FindDue(ctx context.Context, now time.Time, limit int) ([]core.ScheduledMessage, error) {
	q := s.db.WithContext(ctx).
		Where("state = ? AND scheduled_for <= ?", string(core.StatePending), now.UTC()).
		Order("scheduled_for asc, id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []ScheduledMessage
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("FindDue: %w", err)
	}
	return toCoreMessages(rows), nil
}

func toCoreMessages(rows []ScheduledMessage) []core.ScheduledMessage {
	out := make([]core.ScheduledMessage, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toCore())
	}
	return out
}

func (s *Store) MarkSent(ctx context.Context, id int64) error {
	now := s.now().UTC()
	return s.transition(ctx, "MarkSent", id, map[string]any{
		"state":      string(core.StateSent),
		"sent_at":    now,
		"updated_at": now,
	})
}

func (s *Store) MarkFailed(ctx context.Context, id int64, reason string) error {
	return s.transition(ctx, "MarkFailed", id, map[string]any{
		"state":      string(core.StateFailed),
		"last_error": reason,
		"attempts":   gorm.Expr("attempts + 1"),
		"updated_at": s.now().UTC(),
	})
}

func (s *Store) Cancel(ctx context.Context, id int64) error {
	return s.transition(ctx, "Cancel", id, map[string]any{
		"state":      string(core.StateCancelled),
		"updated_at": s.now().UTC(),
	})
}

// transition applies updates only while the row is still pending. A miss is
// resolved into ErrNotFound or a TerminalError carrying the current state.
func (s *Store) transition(ctx context.Context, op string, id int64, updates map[string]any) error {
	res := s.db.WithContext(ctx).Model(&ScheduledMessage{}).
		Where("id = ? AND state = ?", id, string(core.StatePending)).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("%s %d: %w", op, id, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var row ScheduledMessage
	err := s.db.WithContext(ctx).Select("id", "state").First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %d: %w", op, id, core.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s %d: %w", op, id, err)
	}
	return fmt.Errorf("%s: %w", op, &core.TerminalError{ID: id, State: core.State(row.State)})
}

func (s *Store) RecordAttempt(ctx context.Context, id int64, reason string) error {
	err := s.db.WithContext(ctx).Model(&ScheduledMessage{}).
		Where("id = ? AND state = ?", id, string(core.StatePending)).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": reason,
			"updated_at": s.now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("RecordAttempt %d: %w", id, err)
	}
	return nil
}

package db

import (
	"context"
	"errors"
	"fmt"

	"SlackScheduler/internal/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) UpsertCredential(ctx context.Context, c core.Credential) error {
	if err := c.Owner.Validate(); err != nil {
		return err
	}
	now := s.now().UTC()
	row := Credential{
		UserID:       c.UserID,
		TeamID:       c.TeamID,
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		ExpiresAt:    c.ExpiresAt.UTC(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "team_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expires_at", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("UpsertCredential: team %s, user %s: %w", c.TeamID, c.UserID, err)
	}
	return nil
}

func (s *Store) GetCredential(ctx context.Context, owner core.Owner) (core.Credential, bool, error) {
	var row Credential
	err := s.db.WithContext(ctx).Where("user_id = ? AND team_id = ?", owner.UserID, owner.TeamID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Credential{}, false, nil
	}
	if err != nil {
		return core.Credential{}, false, fmt.Errorf("GetCredential: team %s, user %s: %w", owner.TeamID, owner.UserID, err)
	}
	return row.toCore(), true, nil
}

package goal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/saulo-duarte/chronos-goals/internal/metric"
	"gorm.io/gorm"
)

// Authorizer decides whether a user may change goals in a scope.
type Authorizer interface {
	CanManage(ctx context.Context, userID uuid.UUID, scope metric.Scope) (bool, error)
}

type TeamDirectory interface {
	IsMember(ctx context.Context, teamID, userID uuid.UUID) (bool, error)
}

// ScopeAuthorizer lets owners manage their own goals and team members manage
// team goals. SystemUser may manage everything.
type ScopeAuthorizer struct {
	teams TeamDirectory
}

func NewScopeAuthorizer(teams TeamDirectory) *ScopeAuthorizer {
	return &ScopeAuthorizer{teams: teams}
}

func (a *ScopeAuthorizer) CanManage(ctx context.Context, userID uuid.UUID, scope metric.Scope) (bool, error) {
	if userID == SystemUser {
		return true, nil
	}
	switch {
	case scope.OwnerID != nil:
		return *scope.OwnerID == userID, nil
	case scope.TeamID != nil && a.teams != nil:
		return a.teams.IsMember(ctx, *scope.TeamID, userID)
	default:
		return false, nil
	}
}

type TeamMember struct {
	TeamID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"team_id"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	CreatedOn time.Time `gorm:"not null" json:"created_on"`
}

func (TeamMember) TableName() string { return "team_members" }

type TeamRepository interface {
	TeamDirectory
	AddMember(ctx context.Context, teamID, userID uuid.UUID) error
	RemoveMember(ctx context.Context, teamID, userID uuid.UUID) error
}

type teamRepository struct {
	db *gorm.DB
}

func NewTeamRepository(db *gorm.DB) TeamRepository {
	return &teamRepository{db: db}
}

func (r *teamRepository) IsMember(ctx context.Context, teamID, userID uuid.UUID) (bool, error) {
	var m TeamMember
	err := r.db.WithContext(ctx).Take(&m, "team_id = ? AND user_id = ?", teamID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *teamRepository) AddMember(ctx context.Context, teamID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Create(&TeamMember{
		TeamID:    teamID,
		UserID:    userID,
		CreatedOn: time.Now().UTC(),
	}).Error
}

func (r *teamRepository) RemoveMember(ctx context.Context, teamID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&TeamMember{}, "team_id = ? AND user_id = ?", teamID, userID).Error
}

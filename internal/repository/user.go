package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/parabase-io/parabase/internal/db"
	"github.com/parabase-io/parabase/internal/repositories"
)

// userRepo is the GORM implementation of UserRepository.
type userRepo struct {
	db *gorm.DB
}

func (r *userRepo) Create(ctx context.Context, user *db.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return repositories.ErrConflict
		}
		return fmt.Errorf("users: create: %w", err)
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*db.User, error) {
	var user db.User
	err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("users: get by id: %w", err)
	}
	return &user, nil
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*db.User, error) {
	var user db.User
	err := r.db.WithContext(ctx).First(&user, "email = ?", email).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("users: get by email: %w", err)
	}
	return &user, nil
}

func (r *userRepo) Update(ctx context.Context, user *db.User) error {
	result := r.db.WithContext(ctx).Save(user)
	if result.Error != nil {
		return fmt.Errorf("users: update: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *userRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.User{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("users: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *userRepo) List(ctx context.Context, opts repositories.ListOptions) ([]db.User, int64, error) {
	var users []db.User
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.User{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("users: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at ASC").
		Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}

	return users, total, nil
}

func (r *userRepo) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&db.User{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("users: count: %w", err)
	}
	return total, nil
}

// -----------------------------------------------------------------------------
// inviteRepo
// -----------------------------------------------------------------------------

// inviteRepo is the GORM implementation of InviteRepository.
type inviteRepo struct {
	db *gorm.DB
}

func (r *inviteRepo) Create(ctx context.Context, invite *db.Invite) error {
	if err := r.db.WithContext(ctx).Create(invite).Error; err != nil {
		return fmt.Errorf("invites: create: %w", err)
	}
	return nil
}

func (r *inviteRepo) GetByTokenHash(ctx context.Context, hash string) (*db.Invite, error) {
	var invite db.Invite
	err := r.db.WithContext(ctx).First(&invite, "token_hash = ?", hash).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("invites: get by token hash: %w", err)
	}
	return &invite, nil
}

// MarkUsed consumes an invite iff it has not already been used. The guard in
// the WHERE clause makes redemption race-safe without a separate lock.
func (r *inviteRepo) MarkUsed(ctx context.Context, id uuid.UUID, usedBy uuid.UUID, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&db.Invite{}).
		Where("id = ? AND used_at IS NULL", id).
		Updates(map[string]any{"used_at": now, "used_by": usedBy})
	if result.Error != nil {
		return fmt.Errorf("invites: mark used: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *inviteRepo) List(ctx context.Context, opts repositories.ListOptions) ([]db.Invite, int64, error) {
	var invites []db.Invite
	var total int64

	if err := r.db.WithContext(ctx).Model(&db.Invite{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("invites: list count: %w", err)
	}

	if err := r.db.WithContext(ctx).
		Limit(opts.Limit).
		Offset(opts.Offset).
		Order("created_at DESC").
		Find(&invites).Error; err != nil {
		return nil, 0, fmt.Errorf("invites: list: %w", err)
	}

	return invites, total, nil
}

func (r *inviteRepo) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&db.Invite{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("invites: delete: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

// -----------------------------------------------------------------------------
// sessionRepo
// -----------------------------------------------------------------------------

// sessionRepo is the GORM implementation of SessionRepository.
type sessionRepo struct {
	db *gorm.DB
}

func (r *sessionRepo) Create(ctx context.Context, session *db.Session) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("sessions: create: %w", err)
	}
	return nil
}

func (r *sessionRepo) GetByTokenHash(ctx context.Context, hash string) (*db.Session, error) {
	var session db.Session
	err := r.db.WithContext(ctx).First(&session, "token_hash = ?", hash).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repositories.ErrNotFound
		}
		return nil, fmt.Errorf("sessions: get by token hash: %w", err)
	}
	return &session, nil
}

func (r *sessionRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&db.Session{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", gorm.Expr("CURRENT_TIMESTAMP"))
	if result.Error != nil {
		return fmt.Errorf("sessions: revoke: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return repositories.ErrNotFound
	}
	return nil
}

func (r *sessionRepo) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	err := r.db.WithContext(ctx).
		Model(&db.Session{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
	if err != nil {
		return fmt.Errorf("sessions: revoke all for user: %w", err)
	}
	return nil
}

func (r *sessionRepo) DeleteExpired(ctx context.Context, now time.Time) error {
	err := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Delete(&db.Session{}).Error
	if err != nil {
		return fmt.Errorf("sessions: delete expired: %w", err)
	}
	return nil
}

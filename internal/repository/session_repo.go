package repository

import (
	"context"
	"errors"
	"time"

	"justgov/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionRepository provides DB access for refresh sessions.
//
// Revoke and RevokeFamily are idempotent: revoking an already-revoked row is
// a no-op, and concurrent family revocations converge to the same state.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Transaction runs fn against a repository bound to one DB transaction.
// LockByJTI only blocks concurrent lockers when called inside a transaction.
func (r *SessionRepository) Transaction(ctx context.Context, fn func(txRepo *SessionRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&SessionRepository{db: tx})
	})
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *SessionRepository) GetByJTI(ctx context.Context, jti string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).Where("jti = ?", jti).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// LockByJTI fetches the row with SELECT ... FOR UPDATE, serializing
// concurrent refreshes of the same token for the duration of the enclosing
// transaction.
func (r *SessionRepository) LockByJTI(ctx context.Context, jti string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("jti = ?", jti).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) Revoke(ctx context.Context, jti string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("jti = ? AND revoked_at IS NULL", jti).
		Update("revoked_at", now).Error
}

func (r *SessionRepository) RevokeFamily(ctx context.Context, familyID string) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("family_id = ? AND revoked_at IS NULL", familyID).
		Update("revoked_at", now).Error
}

func (r *SessionRepository) LinkRotation(ctx context.Context, oldJTI string, newID int64) error {
	return r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("jti = ?", oldJTI).
		Update("replaced_by_id", newID).Error
}

// DeleteExpired removes sessions past their expiry and revoked sessions older
// than keepRevoked. Retention only; the rotation engine never deletes rows.
func (r *SessionRepository) DeleteExpired(ctx context.Context, keepRevoked time.Duration) (int64, error) {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Or("revoked_at IS NOT NULL AND revoked_at < ?", now.Add(-keepRevoked)).
		Delete(&domain.Session{})
	return res.RowsAffected, res.Error
}

package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"justgov/internal/database"
	"justgov/internal/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.Session{}))
	return db
}

func makeSession(userID int64, familyID string, expiresIn time.Duration) *domain.Session {
	now := time.Now().UTC()
	return &domain.Session{
		UserID:           userID,
		JTI:              uuid.NewString(),
		FamilyID:         familyID,
		RefreshTokenHash: uuid.NewString(),
		IssuedAt:         now,
		ExpiresAt:        now.Add(expiresIn),
	}
}

func TestSessionRepo_JTIUnique(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()

	s1 := makeSession(1, uuid.NewString(), time.Hour)
	require.NoError(t, repo.Create(ctx, s1))

	dup := makeSession(1, s1.FamilyID, time.Hour)
	dup.JTI = s1.JTI
	assert.Error(t, repo.Create(ctx, dup))
}

func TestSessionRepo_RevokeIsIdempotent(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()

	s := makeSession(1, uuid.NewString(), time.Hour)
	require.NoError(t, repo.Create(ctx, s))

	require.NoError(t, repo.Revoke(ctx, s.JTI))

	got, err := repo.GetByJTI(ctx, s.JTI)
	require.NoError(t, err)
	require.NotNil(t, got.RevokedAt)
	first := *got.RevokedAt

	// A second revoke must not move the timestamp.
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, repo.Revoke(ctx, s.JTI))

	got, err = repo.GetByJTI(ctx, s.JTI)
	require.NoError(t, err)
	assert.True(t, got.RevokedAt.Equal(first))
}

func TestSessionRepo_RevokeFamilyScope(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()

	family := uuid.NewString()
	a := makeSession(1, family, time.Hour)
	b := makeSession(1, family, time.Hour)
	other := makeSession(2, uuid.NewString(), time.Hour)
	require.NoError(t, repo.Create(ctx, a))
	require.NoError(t, repo.Create(ctx, b))
	require.NoError(t, repo.Create(ctx, other))

	require.NoError(t, repo.RevokeFamily(ctx, family))

	for _, jti := range []string{a.JTI, b.JTI} {
		got, err := repo.GetByJTI(ctx, jti)
		require.NoError(t, err)
		assert.NotNil(t, got.RevokedAt, "family member %s should be revoked", jti)
		assert.Nil(t, got.ReplacedByID)
	}

	got, err := repo.GetByJTI(ctx, other.JTI)
	require.NoError(t, err)
	assert.Nil(t, got.RevokedAt, "other family must be untouched")
}

func TestSessionRepo_LinkRotation(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()

	family := uuid.NewString()
	old := makeSession(1, family, time.Hour)
	succ := makeSession(1, family, time.Hour)
	require.NoError(t, repo.Create(ctx, old))
	require.NoError(t, repo.Create(ctx, succ))

	require.NoError(t, repo.Revoke(ctx, old.JTI))
	require.NoError(t, repo.LinkRotation(ctx, old.JTI, succ.ID))

	got, err := repo.GetByJTI(ctx, old.JTI)
	require.NoError(t, err)
	require.NotNil(t, got.ReplacedByID)
	assert.Equal(t, succ.ID, *got.ReplacedByID)
	assert.True(t, got.IsRotated())
}

func TestSessionRepo_GetByJTIMissing(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))

	got, err := repo.GetByJTI(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionRepo_DeleteExpired(t *testing.T) {
	repo := NewSessionRepository(newTestDB(t))
	ctx := context.Background()

	expired := makeSession(1, uuid.NewString(), -time.Hour)
	live := makeSession(1, uuid.NewString(), time.Hour)
	oldRevoked := makeSession(1, uuid.NewString(), time.Hour)
	freshRevoked := makeSession(1, uuid.NewString(), time.Hour)
	require.NoError(t, repo.Create(ctx, expired))
	require.NoError(t, repo.Create(ctx, live))
	require.NoError(t, repo.Create(ctx, oldRevoked))
	require.NoError(t, repo.Create(ctx, freshRevoked))

	past := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, repo.db.Model(oldRevoked).Update("revoked_at", past).Error)
	require.NoError(t, repo.Revoke(ctx, freshRevoked.JTI))

	deleted, err := repo.DeleteExpired(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 2, deleted)

	got, err := repo.GetByJTI(ctx, live.JTI)
	require.NoError(t, err)
	assert.NotNil(t, got)

	got, err = repo.GetByJTI(ctx, freshRevoked.JTI)
	require.NoError(t, err)
	assert.NotNil(t, got, "recently revoked rows are kept for auditing")

	for _, jti := range []string{expired.JTI, oldRevoked.JTI} {
		got, err = repo.GetByJTI(ctx, jti)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
}

package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"strings"
	"time"

	"justgov/internal/cache"
	"justgov/internal/config"
	"justgov/internal/domain"
	"justgov/internal/pkg/hasher"
	"justgov/internal/ratelimit"
	"justgov/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

// Service contains the rotation engine and the surrounding auth logic.
//
// The durable session rows are authoritative; the replay cache only widens
// the idempotency window for duplicate refresh calls. Losing the cache can
// cause false-positive theft responses under retry storms but never corrupts
// durable state.
type Service struct {
	users    UserStore
	sessions *repository.SessionRepository
	jwt      jwtService
	hasher   *hasher.Hasher
	replay   *cache.ReplayCache
	limiter  *ratelimit.Limiter

	refreshTTL    time.Duration
	graceTTL      time.Duration
	lookupRetries int
	lookupBackoff time.Duration

	emailLimit  int
	emailWindow time.Duration
}

func NewService(
	users UserStore,
	sessions *repository.SessionRepository,
	jwt jwtService,
	h *hasher.Hasher,
	replay *cache.ReplayCache,
	limiter *ratelimit.Limiter,
	cfg *config.Config,
) *Service {
	return &Service{
		users:         users,
		sessions:      sessions,
		jwt:           jwt,
		hasher:        h,
		replay:        replay,
		limiter:       limiter,
		refreshTTL:    cfg.RefreshTTL,
		graceTTL:      cfg.ReplayGraceTTL,
		lookupRetries: cfg.ReplayLookupRetries,
		lookupBackoff: cfg.ReplayLookupBackoff,
		emailLimit:    cfg.LoginEmailLimit,
		emailWindow:   cfg.LoginEmailWindow,
	}
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*domain.User, error) {
	email := normalizeEmail(req.Email)

	if err := s.limiter.Check(ctx, "register:email", email, s.emailLimit, s.emailWindow); err != nil {
		return nil, err
	}

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrEmailAlreadyExists
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: string(hashed),
		Name:         req.Name,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Two concurrent registrations can both pass the exists check; the
		// unique index on email decides the winner.
		if pgErr, ok := err.(*pgconn.PgError); ok && pgErr.Code == "23505" {
			return nil, ErrEmailAlreadyExists
		}
		return nil, err
	}

	user.PasswordHash = ""
	return user, nil
}

// Login verifies credentials and starts a new session family for this
// device/browser.
func (s *Service) Login(ctx context.Context, req LoginRequest, userAgent, ip string) (*LoginResult, error) {
	email := normalizeEmail(req.Email)

	if err := s.limiter.Check(ctx, "login:email", email, s.emailLimit, s.emailWindow); err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	jti, plaintext, err := newRefreshToken()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.refreshTTL)
	sess := &domain.Session{
		UserID:           user.ID,
		JTI:              jti,
		FamilyID:         uuid.NewString(),
		RefreshTokenHash: s.hasher.Hash(plaintext),
		IssuedAt:         now,
		ExpiresAt:        expiresAt,
		UserAgent:        nullableString(userAgent),
		IPAddress:        nullableString(ip),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	access, err := s.jwt.GenerateToken(user.ID)
	if err != nil {
		return nil, err
	}

	user.PasswordHash = ""
	return &LoginResult{
		User:             user,
		AccessToken:      access,
		RefreshToken:     plaintext,
		RefreshExpiresAt: expiresAt,
	}, nil
}

// Refresh runs the rotation state machine for one presented token:
// rotate when the row is still active, replay-recover when the same token
// was already rotated moments ago, revoke the family otherwise.
func (s *Service) Refresh(ctx context.Context, refreshRaw, userAgent, ip string) (*RefreshResult, error) {
	jti, ok := splitRefreshToken(refreshRaw)
	if !ok {
		return nil, ErrTokenInvalid
	}

	sess, err := s.sessions.GetByJTI(ctx, jti)
	if err != nil {
		return nil, err
	}
	// Unknown jti and hash mismatch must be indistinguishable to the caller.
	if sess == nil || !s.hasher.Verify(refreshRaw, sess.RefreshTokenHash) {
		return nil, ErrTokenInvalid
	}

	if sess.IsExpired(time.Now().UTC()) {
		return nil, ErrTokenExpired
	}

	if sess.IsRevoked() {
		return s.recoverOrRevoke(ctx, sess)
	}

	res, raced, err := s.rotate(ctx, sess, userAgent, ip)
	if err != nil {
		return nil, err
	}
	if raced != nil {
		// Another request rotated this jti while we waited for the row lock.
		return s.recoverOrRevoke(ctx, raced)
	}
	return res, nil
}

// Logout revokes only the session named by the cookie. Malformed or unknown
// tokens are ignored; logout is idempotent.
func (s *Service) Logout(ctx context.Context, refreshRaw string) error {
	jti, ok := splitRefreshToken(refreshRaw)
	if !ok {
		return nil
	}
	return s.sessions.Revoke(ctx, jti)
}

func (s *Service) CurrentUser(ctx context.Context, userID int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

// rotate advances an active session to a fresh jti under a row lock. When
// the locked row turns out to be already revoked (a concurrent refresh won
// the race), it is returned as raced and nothing is written.
func (s *Service) rotate(ctx context.Context, old *domain.Session, userAgent, ip string) (res *RefreshResult, raced *domain.Session, err error) {
	newJTI, plaintext, err := newRefreshToken()
	if err != nil {
		return nil, nil, err
	}

	now := time.Now().UTC()
	expiresAt := now.Add(s.refreshTTL)
	newSess := &domain.Session{
		UserID:           old.UserID,
		JTI:              newJTI,
		FamilyID:         old.FamilyID,
		RefreshTokenHash: s.hasher.Hash(plaintext),
		IssuedAt:         now,
		ExpiresAt:        expiresAt,
		UserAgent:        nullableString(userAgent),
		IPAddress:        nullableString(ip),
	}

	err = s.sessions.Transaction(ctx, func(tx *repository.SessionRepository) error {
		cur, err := tx.LockByJTI(ctx, old.JTI)
		if err != nil {
			return err
		}
		if cur == nil {
			return ErrTokenInvalid
		}
		if cur.IsExpired(time.Now().UTC()) {
			return ErrTokenExpired
		}
		if cur.IsRevoked() {
			raced = cur
			return nil
		}
		if err := tx.Create(ctx, newSess); err != nil {
			return err
		}
		if err := tx.Revoke(ctx, cur.JTI); err != nil {
			return err
		}
		return tx.LinkRotation(ctx, cur.JTI, newSess.ID)
	})
	if err != nil {
		return nil, nil, err
	}
	if raced != nil {
		return nil, raced, nil
	}

	// Outside the transaction: grace entries so a duplicate of this exact
	// call resolves to the same successor instead of tripping theft response.
	// Best effort; a failed write only narrows the grace window.
	if s.replay != nil {
		if cacheErr := s.replay.PutRotation(ctx, old.JTI, newJTI, s.graceTTL); cacheErr != nil {
			log.Printf("auth: replay cache write failed: jti=%s err=%v", old.JTI, cacheErr)
		} else if cacheErr := s.replay.PutIssued(ctx, newJTI, cache.IssuedToken{
			Plaintext: plaintext,
			ExpiresAt: expiresAt,
		}, s.graceTTL); cacheErr != nil {
			log.Printf("auth: replay cache write failed: jti=%s err=%v", newJTI, cacheErr)
		}
	}

	access, err := s.jwt.GenerateToken(old.UserID)
	if err != nil {
		return nil, nil, err
	}
	return &RefreshResult{
		AccessToken:      access,
		RefreshToken:     plaintext,
		RefreshExpiresAt: expiresAt,
	}, nil, nil
}

// recoverOrRevoke handles a revoked row presented for refresh. A rotated row
// may still be a legitimate duplicate inside the grace window; anything else
// is treated as replay of a stolen token and the family is contained.
func (s *Service) recoverOrRevoke(ctx context.Context, sess *domain.Session) (*RefreshResult, error) {
	if sess.IsRotated() && s.replay != nil {
		if res, ok := s.recoverFromGrace(ctx, sess); ok {
			return res, nil
		}
	}

	if err := s.sessions.RevokeFamily(ctx, sess.FamilyID); err != nil {
		return nil, err
	}
	return nil, ErrTokenReused
}

// recoverFromGrace polls the replay cache for the successor of an
// already-rotated jti, then independently re-verifies the successor row.
// The retry loop covers the gap between a concurrent rotation's commit and
// its cache writes.
func (s *Service) recoverFromGrace(ctx context.Context, sess *domain.Session) (*RefreshResult, bool) {
	var newJTI string
	for attempt := 0; attempt < s.lookupRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * s.lookupBackoff)
		}
		got, err := s.replay.GetRotation(ctx, sess.JTI)
		if err != nil {
			log.Printf("auth: replay cache lookup failed: jti=%s err=%v", sess.JTI, err)
			return nil, false
		}
		if got != "" {
			newJTI = got
			break
		}
	}
	if newJTI == "" {
		return nil, false
	}

	tok, err := s.replay.GetIssued(ctx, newJTI)
	if err != nil || tok == nil {
		return nil, false
	}

	// The cache is not authoritative: the successor row must still exist,
	// be unrevoked and unexpired, and match the cached plaintext.
	succ, err := s.sessions.GetByJTI(ctx, newJTI)
	if err != nil || succ == nil {
		return nil, false
	}
	if succ.IsRevoked() || succ.IsExpired(time.Now().UTC()) {
		return nil, false
	}
	if !s.hasher.Verify(tok.Plaintext, succ.RefreshTokenHash) {
		return nil, false
	}

	access, err := s.jwt.GenerateToken(succ.UserID)
	if err != nil {
		return nil, false
	}
	return &RefreshResult{
		AccessToken:      access,
		RefreshToken:     tok.Plaintext,
		RefreshExpiresAt: succ.ExpiresAt,
	}, true
}

// newRefreshToken returns a fresh jti and the plaintext "{jti}.{secret}"
// sent to the client. Only the keyed hash of the plaintext is ever stored.
func newRefreshToken() (jti, plaintext string, err error) {
	jti = uuid.NewString()
	buf := make([]byte, 32)
	if _, err = rand.Read(buf); err != nil {
		return "", "", err
	}
	plaintext = jti + "." + hex.EncodeToString(buf)
	return jti, plaintext, nil
}

func splitRefreshToken(raw string) (jti string, ok bool) {
	i := strings.IndexByte(raw, '.')
	if i <= 0 || i == len(raw)-1 {
		return "", false
	}
	return raw[:i], true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func nullableString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

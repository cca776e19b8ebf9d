package domain

import "time"

// Session is one generation of a refresh token. A login starts a new family;
// every rotation inserts a fresh row carrying the same FamilyID, so the chain
// of ReplacedByID pointers records the full rotation history of one device.
//
// Security notes:
// - We never store the raw token, only its keyed hash (RefreshTokenHash).
// - RevokedAt is terminal: rows are never un-revoked, and a revoked row never
//   authorizes a refresh no matter what hash is presented.
// - FamilyID is the blast radius of theft response: replay of a spent token
//   revokes every live row in the family.
type Session struct {
	ID     int64 `json:"id" gorm:"primaryKey"`
	UserID int64 `json:"user_id" gorm:"index;not null"`

	JTI      string `json:"jti" gorm:"size:36;uniqueIndex;not null"`
	FamilyID string `json:"family_id" gorm:"size:36;index;not null"`

	RefreshTokenHash string `json:"-" gorm:"size:64;uniqueIndex;not null"`

	IssuedAt  time.Time  `json:"issued_at" gorm:"not null"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"index;not null"`
	RevokedAt *time.Time `json:"revoked_at" gorm:"index"`

	// ReplacedByID is set only when the row was rotated, never on a plain
	// revoke. Rotated == revoked with a successor.
	ReplacedByID *int64 `json:"replaced_by_id" gorm:"index"`

	UserAgent *string `json:"user_agent,omitempty"`
	IPAddress *string `json:"ip_address,omitempty"`
}

func (Session) TableName() string { return "user_sessions" }

func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

func (s *Session) IsRevoked() bool {
	return s.RevokedAt != nil
}

// IsRotated reports whether the row was replaced by a successor, as opposed
// to being revoked by logout or a family-wide theft response.
func (s *Session) IsRotated() bool {
	return s.RevokedAt != nil && s.ReplacedByID != nil
}

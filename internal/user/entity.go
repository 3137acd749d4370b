// AngelaMos | 2026
// entity.go

package user

import (
	"time"
)

type User struct {
	ID                     string     `db:"id"`
	Email                  string     `db:"email"`
	PasswordHash           string     `db:"password_hash"`
	Name                   string     `db:"name"`
	Role                   string     `db:"role"`
	Credits                int        `db:"credits"`
	ReferralCode           *string    `db:"referral_code"`
	ReferredBy             *string    `db:"referred_by"`
	XP                     int        `db:"xp"`
	DailyStreak            int        `db:"daily_streak"`
	BestDailyStreak        int        `db:"best_daily_streak"`
	LastDailyChallengeDate *time.Time `db:"last_daily_challenge_date"`
	CreatedAt              time.Time  `db:"created_at"`
	UpdatedAt              time.Time  `db:"updated_at"`
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsMetered reports whether AI calls draw down the user's credit balance.
func (u *User) IsMetered() bool {
	return u.Role == RoleFree
}

const (
	RoleFree  = "free"
	RolePro   = "pro"
	RoleAdmin = "admin"
)

func ValidRole(role string) bool {
	switch role {
	case RoleFree, RolePro, RoleAdmin:
		return true
	}
	return false
}

type RoleCounts struct {
	Free  int `db:"free"  json:"free"`
	Pro   int `db:"pro"   json:"pro"`
	Admin int `db:"admin" json:"admin"`
}

func (c RoleCounts) Total() int {
	return c.Free + c.Pro + c.Admin
}

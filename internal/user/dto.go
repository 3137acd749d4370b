// AngelaMos | 2026
// dto.go

package user

import (
	"strings"
	"time"
)

const (
	defaultListLimit = 25
	maxListLimit     = 100
)

type UpdateUserRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=free pro admin"`
}

type SetRoleByEmailRequest struct {
	Email string `json:"email" validate:"required,email,max=255"`
	Role  string `json:"role"  validate:"required,oneof=free pro admin"`
}

type UserResponse struct {
	ID                     string     `json:"id"`
	Email                  string     `json:"email"`
	Name                   string     `json:"name"`
	Role                   string     `json:"role"`
	Credits                int        `json:"credits"`
	ReferralCode           *string    `json:"referral_code"`
	XP                     int        `json:"xp"`
	DailyStreak            int        `json:"daily_streak"`
	BestDailyStreak        int        `json:"best_daily_streak"`
	LastDailyChallengeDate *string    `json:"last_daily_challenge_date"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              *time.Time `json:"updated_at,omitempty"`
}

type UserListResponse struct {
	Users      []UserResponse `json:"users"`
	Total      int            `json:"total"`
	Limit      int            `json:"limit"`
	Offset     int            `json:"offset"`
	NextOffset *int           `json:"next_offset"`
	PrevOffset *int           `json:"prev_offset"`
}

type ListUsersParams struct {
	Limit  int
	Offset int
	Query  string
}

func (p *ListUsersParams) Normalize() {
	if p.Limit < 1 {
		p.Limit = defaultListLimit
	}
	if p.Limit > maxListLimit {
		p.Limit = maxListLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	p.Query = strings.ToLower(strings.TrimSpace(p.Query))
}

func ToUserResponse(u *User) UserResponse {
	resp := UserResponse{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		Role:            u.Role,
		Credits:         u.Credits,
		ReferralCode:    u.ReferralCode,
		XP:              u.XP,
		DailyStreak:     u.DailyStreak,
		BestDailyStreak: u.BestDailyStreak,
		CreatedAt:       u.CreatedAt,
	}

	if u.LastDailyChallengeDate != nil {
		d := u.LastDailyChallengeDate.UTC().Format(time.DateOnly)
		resp.LastDailyChallengeDate = &d
	}

	if !u.UpdatedAt.IsZero() {
		updated := u.UpdatedAt
		resp.UpdatedAt = &updated
	}

	return resp
}

func ToUserListResponse(users []User, total int, params ListUsersParams) UserListResponse {
	out := make([]UserResponse, 0, len(users))
	for i := range users {
		out = append(out, ToUserResponse(&users[i]))
	}

	resp := UserListResponse{
		Users:  out,
		Total:  total,
		Limit:  params.Limit,
		Offset: params.Offset,
	}

	if next := params.Offset + params.Limit; next < total {
		resp.NextOffset = &next
	}
	if params.Offset > 0 {
		prev := max(params.Offset-params.Limit, 0)
		resp.PrevOffset = &prev
	}

	return resp
}

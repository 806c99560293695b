package store

import (
	"os"
	"path/filepath"
	"time"
)

// AuthUser is an authorized Telegram user.
type AuthUser struct {
	UserID      int64    `json:"user_id"`
	Username    string   `json:"username"`
	Role        string   `json:"role"` // user or admin
	Permissions []string `json:"permissions,omitempty"`
	AddedAt     string   `json:"added_at,omitempty"`
}

type authConfig struct {
	AuthorizedUsers []AuthUser `json:"authorized_users"`
}

func (s *FileStore) authPath() string {
	return filepath.Join(s.dataDir, "telegram_auth.json")
}

// LoadAuthUsers reads the authorized Telegram users.
func (s *FileStore) LoadAuthUsers() ([]AuthUser, error) {
	var cfg authConfig
	if err := s.loadJSON(s.authPath(), &cfg); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return cfg.AuthorizedUsers, nil
}

// SaveAuthUsers persists the authorized Telegram users.
func (s *FileStore) SaveAuthUsers(users []AuthUser) error {
	return s.saveJSON(s.authPath(), &authConfig{AuthorizedUsers: users}, false)
}

// NewAuthUser builds an AuthUser stamped with the current time.
func NewAuthUser(userID int64, username, role string, permissions []string) AuthUser {
	return AuthUser{
		UserID:      userID,
		Username:    username,
		Role:        role,
		Permissions: permissions,
		AddedAt:     time.Now().UTC().Format(time.RFC3339),
	}
}

package telegram

import (
	"fmt"
	"strconv"
	gosync "sync"
	"time"

	"copytrader/internal/secure"
	"copytrader/internal/store"
)

// Roles assignable to Telegram users.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// PermTradeNotifications lets a user receive trade notifications.
const PermTradeNotifications = "trade_notifications"

const sessionTTL = 24 * time.Hour

type session struct {
	token   string
	expires time.Time
}

// Auth decides which Telegram users may talk to the bot. Chat IDs from the
// environment are always admins, additional users are persisted by the store.
type Auth struct {
	mu       gosync.Mutex
	store    *store.FileStore
	limiter  *secure.RateLimiter
	users    map[int64]store.AuthUser
	sessions map[int64]session
	envAdmin map[int64]bool
	now      func() time.Time
}

// NewAuth loads the persisted user list and combines it with the chat IDs
// allowed via configuration.
func NewAuth(fileStore *store.FileStore, limiter *secure.RateLimiter, allowedChatIDs []int64) (*Auth, error) {
	users, err := fileStore.LoadAuthUsers()
	if err != nil {
		return nil, fmt.Errorf("loading authorized users: %w", err)
	}

	a := &Auth{
		store:    fileStore,
		limiter:  limiter,
		users:    make(map[int64]store.AuthUser, len(users)),
		sessions: make(map[int64]session),
		envAdmin: make(map[int64]bool, len(allowedChatIDs)),
		now:      time.Now,
	}
	for _, u := range users {
		a.users[u.UserID] = u
	}
	for _, id := range allowedChatIDs {
		a.envAdmin[id] = true
	}
	return a, nil
}

// IsAuthorized reports whether the user may use the bot at all.
func (a *Auth) IsAuthorized(userID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.envAdmin[userID] {
		return true
	}
	_, ok := a.users[userID]
	return ok
}

// IsAdmin reports whether the user may run admin commands.
func (a *Auth) IsAdmin(userID int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.envAdmin[userID] {
		return true
	}
	u, ok := a.users[userID]
	return ok && u.Role == RoleAdmin
}

// HasPermission reports whether the user carries the named permission.
// Admins implicitly carry every permission.
func (a *Auth) HasPermission(userID int64, permission string) bool {
	if a.IsAdmin(userID) {
		return true
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	u, ok := a.users[userID]
	if !ok {
		return false
	}
	for _, p := range u.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckCommand applies the per-user command rate limit and refreshes the
// user's session.
func (a *Auth) CheckCommand(userID int64) error {
	if err := a.limiter.Check(strconv.FormatInt(userID, 10), secure.OpTelegramCommand); err != nil {
		return err
	}
	return a.touchSession(userID)
}

// touchSession creates or extends a session for the user.
func (a *Auth) touchSession(userID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.sessions[userID]
	if ok && a.now().Before(s.expires) {
		s.expires = a.now().Add(sessionTTL)
		a.sessions[userID] = s
		return nil
	}

	token, err := secure.GenerateSessionToken()
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	a.sessions[userID] = session{token: token, expires: a.now().Add(sessionTTL)}
	return nil
}

// AddUser authorizes a new user and persists the list.
func (a *Auth) AddUser(userID int64, username, role string, permissions []string) error {
	if role != RoleUser && role != RoleAdmin {
		return fmt.Errorf("invalid role %q", role)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.users[userID] = store.NewAuthUser(userID, username, role, permissions)
	return a.persistLocked()
}

// RemoveUser revokes a user's access and persists the list.
func (a *Auth) RemoveUser(userID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.users[userID]; !ok {
		return fmt.Errorf("user %d is not authorized", userID)
	}
	delete(a.users, userID)
	delete(a.sessions, userID)
	return a.persistLocked()
}

// ListUsers returns the persisted users.
func (a *Auth) ListUsers() []store.AuthUser {
	a.mu.Lock()
	defer a.mu.Unlock()

	users := make([]store.AuthUser, 0, len(a.users))
	for _, u := range a.users {
		users = append(users, u)
	}
	return users
}

// Recipients returns the chat IDs that should receive a broadcast: admins
// always, plus users carrying the permission when one is given.
func (a *Auth) Recipients(permission string) []int64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	seen := make(map[int64]bool)
	var ids []int64
	add := func(id int64) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	for id := range a.envAdmin {
		add(id)
	}
	for id, u := range a.users {
		if u.Role == RoleAdmin {
			add(id)
			continue
		}
		if permission == "" {
			continue
		}
		for _, p := range u.Permissions {
			if p == permission {
				add(id)
				break
			}
		}
	}
	return ids
}

func (a *Auth) persistLocked() error {
	users := make([]store.AuthUser, 0, len(a.users))
	for _, u := range a.users {
		users = append(users, u)
	}
	return a.store.SaveAuthUsers(users)
}

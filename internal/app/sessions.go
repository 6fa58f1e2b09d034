package app

import (
	"context"
	"fmt"
	"time"

	"lender_directory/internal/domain"
)

// SessionService issues login tokens and resolves them through the cache.
type SessionService struct {
	users *UserService
	favs  *FavouriteSessions
	cache domain.Cache
	ids   domain.IDGenerator
	ttl   time.Duration
}

func NewSessionService(users *UserService, favs *FavouriteSessions, c domain.Cache, ttl time.Duration) *SessionService {
	return &SessionService{users: users, favs: favs, cache: c, ids: UUIDs{}, ttl: ttl}
}

func sessionKey(token string) string { return fmt.Sprintf("session:%s", token) }

// Login authenticates, stores the session and seeds the user's favourites.
func (s *SessionService) Login(ctx context.Context, username, password string) (domain.Session, error) {
	u, err := s.users.Authenticate(ctx, username, password)
	if err != nil {
		return domain.Session{}, err
	}
	sess := domain.Session{Token: s.ids.NewID(), User: u}
	if err := s.cache.Set(ctx, sessionKey(sess.Token), sess, int(s.ttl.Seconds())); err != nil {
		return domain.Session{}, fmt.Errorf("store session: %w: %v", domain.ErrUnavailable, err)
	}
	if _, err := s.favs.For(ctx, u.ID); err != nil {
		return domain.Session{}, err
	}
	return sess, nil
}

// Resolve maps a token to its session; unknown or expired tokens are ErrNotFound.
func (s *SessionService) Resolve(ctx context.Context, token string) (domain.Session, error) {
	var sess domain.Session
	ok, err := s.cache.Get(ctx, sessionKey(token), &sess)
	if err != nil {
		return domain.Session{}, fmt.Errorf("read session: %w: %v", domain.ErrUnavailable, err)
	}
	if !ok {
		return domain.Session{}, fmt.Errorf("session: %w", domain.ErrNotFound)
	}
	return sess, nil
}

func (s *SessionService) Logout(ctx context.Context, token string) error {
	sess, err := s.Resolve(ctx, token)
	if err == nil {
		s.favs.Drop(sess.User.ID)
	}
	return s.cache.Del(ctx, sessionKey(token))
}

// Favourites returns the tracker of the session's user.
func (s *SessionService) Favourites(ctx context.Context, sess domain.Session) (*Favourites, error) {
	return s.favs.For(ctx, sess.User.ID)
}

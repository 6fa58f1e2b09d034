package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"lender_directory/internal/domain"
)

var ErrInvalidCredentials = errors.New("invalid username or password")

var userColumns = []string{"id", "username", "is_admin", "created_at", "last_login"}

type UserService struct {
	store domain.RecordStore
	ids   domain.IDGenerator
	clock domain.Clock
	rep   domain.Reporter
	cost  int
}

func NewUserService(store domain.RecordStore, ids domain.IDGenerator, clock domain.Clock, rep domain.Reporter) *UserService {
	if ids == nil {
		ids = UUIDs{}
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if rep == nil {
		rep = nopReporter{}
	}
	return &UserService{store: store, ids: ids, clock: clock, rep: rep, cost: bcrypt.DefaultCost}
}

// WithHashCost lowers the bcrypt cost (tests).
func (s *UserService) WithHashCost(cost int) *UserService {
	s.cost = cost
	return s
}

// List returns users, most recent login first; never-logged-in users last.
func (s *UserService) List(ctx context.Context) ([]domain.User, error) {
	rows, err := s.store.Select(ctx, domain.TableUsers, domain.Query{
		Columns: userColumns,
		Order:   []domain.Order{{Column: "last_login", Desc: true}, {Column: "username"}},
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]domain.User, 0, len(rows))
	for _, row := range rows {
		out = append(out, userFromRow(row))
	}
	return out, nil
}

func (s *UserService) Add(ctx context.Context, username, password string, isAdmin bool) (domain.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || password == "" {
		return domain.User{}, fmt.Errorf("%w: username and password are required", domain.ErrValidation)
	}

	existing, err := s.store.Select(ctx, domain.TableUsers, domain.Query{
		Columns: []string{"id"},
		Where:   []domain.Eq{{Column: "username", Value: username}},
		Limit:   1,
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("check user %s: %w", username, err)
	}
	if len(existing) > 0 {
		return domain.User{}, fmt.Errorf("user %s already exists: %w", username, domain.ErrConstraint)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}
	row := domain.Row{
		"id":            s.ids.NewID(),
		"username":      username,
		"password_hash": string(hash),
		"is_admin":      isAdmin,
		"created_at":    s.clock.Now(),
	}
	inserted, err := s.store.Insert(ctx, domain.TableUsers, row)
	if err != nil {
		return domain.User{}, fmt.Errorf("add user %s: %w", username, err)
	}
	for k, v := range row {
		if _, ok := inserted[k]; !ok {
			inserted[k] = v
		}
	}
	return userFromRow(inserted), nil
}

func (s *UserService) Delete(ctx context.Context, id string) error {
	if _, err := s.store.Delete(ctx, domain.TableFavorites, domain.Eq{Column: "user_id", Value: id}); err != nil {
		return fmt.Errorf("delete favourites of %s: %w", id, err)
	}
	n, err := s.store.Delete(ctx, domain.TableUsers, domain.Eq{Column: "id", Value: id})
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Authenticate checks the password and stamps last_login.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	rows, err := s.store.Select(ctx, domain.TableUsers, domain.Query{
		Columns: append([]string{"password_hash"}, userColumns...),
		Where:   []domain.Eq{{Column: "username", Value: username}},
		Limit:   1,
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("find user %s: %w", username, err)
	}
	if len(rows) == 0 {
		return domain.User{}, ErrInvalidCredentials
	}
	hash, _ := asString(rows[0]["password_hash"])
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return domain.User{}, ErrInvalidCredentials
	}

	u := userFromRow(rows[0])
	now := s.clock.Now()
	if err := s.store.Update(ctx, domain.TableUsers, u.ID, domain.Row{"last_login": now}); err != nil {
		s.rep.ReportPartial("login.stamp", u.ID, err)
	} else {
		u.LastLogin = &now
	}
	return u, nil
}

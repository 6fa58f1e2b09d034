package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"lender_directory/internal/app"
	"lender_directory/internal/domain"
	"lender_directory/internal/storage/memory"
)

func newUsers(store domain.RecordStore) *app.UserService {
	clock := &stepClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return app.NewUserService(store, nil, clock, nil).WithHashCost(bcrypt.MinCost)
}

func TestUsers_AddAuthenticateList(t *testing.T) {
	ctx := context.Background()
	users := newUsers(newFlakyStore())

	admin, err := users.Add(ctx, "  Admin ", "secret", true)
	if err != nil {
		t.Fatal(err)
	}
	if admin.Username != "admin" || !admin.IsAdmin || admin.ID == "" {
		t.Fatalf("admin = %+v", admin)
	}
	if _, err := users.Add(ctx, "ADMIN", "other", false); !errors.Is(err, domain.ErrConstraint) {
		t.Fatalf("duplicate: %v", err)
	}
	if _, err := users.Add(ctx, "x", "", false); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty password: %v", err)
	}
	if _, err := users.Add(ctx, "broker", "pw", false); err != nil {
		t.Fatal(err)
	}
	if _, err := users.Add(ctx, "analyst", "pw", false); err != nil {
		t.Fatal(err)
	}

	if _, err := users.Authenticate(ctx, "admin", "wrong"); !errors.Is(err, app.ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := users.Authenticate(ctx, "ghost", "secret"); !errors.Is(err, app.ErrInvalidCredentials) {
		t.Fatalf("unknown user: %v", err)
	}
	u, err := users.Authenticate(ctx, "Admin", "secret")
	if err != nil || u.LastLogin == nil {
		t.Fatalf("login = %+v, %v", u, err)
	}
	if _, err := users.Authenticate(ctx, "broker", "pw"); err != nil {
		t.Fatal(err)
	}

	list, err := users.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	got := []string{list[0].Username, list[1].Username, list[2].Username}
	// most recent login first, never-logged-in last
	want := []string{"broker", "admin", "analyst"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestUsers_DeleteRemovesFavourites(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	users := newUsers(store)
	u, err := users.Add(ctx, "broker", "pw", false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := app.NewFavourites(store, u.ID).Toggle(ctx, "l1"); err != nil {
		t.Fatal(err)
	}

	if err := users.Delete(ctx, u.ID); err != nil {
		t.Fatal(err)
	}
	if store.Len(domain.TableUsers) != 0 || store.Len(domain.TableFavorites) != 0 {
		t.Fatal("user data left behind")
	}
	if err := users.Delete(ctx, u.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete: %v", err)
	}
}

func TestSessions_LoginResolveLogout(t *testing.T) {
	ctx := context.Background()
	store := newFlakyStore()
	users := newUsers(store)
	if _, err := users.Add(ctx, "broker", "pw", false); err != nil {
		t.Fatal(err)
	}
	sessions := app.NewSessionService(users, app.NewFavouriteSessions(store), memory.NewCache(), time.Hour)

	if _, err := sessions.Login(ctx, "broker", "nope"); !errors.Is(err, app.ErrInvalidCredentials) {
		t.Fatalf("bad login: %v", err)
	}
	sess, err := sessions.Login(ctx, "broker", "pw")
	if err != nil || sess.Token == "" {
		t.Fatalf("login = %+v, %v", sess, err)
	}

	got, err := sessions.Resolve(ctx, sess.Token)
	if err != nil || got.User.Username != "broker" {
		t.Fatalf("resolve = %+v, %v", got, err)
	}
	favs, err := sessions.Favourites(ctx, got)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := favs.Toggle(ctx, "l1"); err != nil {
		t.Fatal(err)
	}

	if err := sessions.Logout(ctx, sess.Token); err != nil {
		t.Fatal(err)
	}
	if _, err := sessions.Resolve(ctx, sess.Token); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("resolve after logout: %v", err)
	}

	// favourites survive logout because they live in the store
	again, _ := sessions.Login(ctx, "broker", "pw")
	favs, _ = sessions.Favourites(ctx, again)
	if !favs.IsFavourite("l1") {
		t.Fatal("favourite lost across sessions")
	}
}

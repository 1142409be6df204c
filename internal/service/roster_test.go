package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/covid-dashboard/internal/apperror"
	"github.com/sakif/covid-dashboard/internal/model"
)

// =========================================================================
// FAKE REPOSITORY
// =========================================================================
//
// fakeUserRepo keeps users in a map and mirrors the SQL store's rules:
// one row per email, unique images, unknown emails ignored by SetCountry.

type fakeUserRepo struct {
	users   map[string]model.User
	nextSeq int64
	err     error // returned by every method when set
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]model.User)}
}

func (f *fakeUserRepo) CreateIfNotExists(_ context.Context, u *model.User) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if _, ok := f.users[u.Email]; ok {
		return false, nil
	}
	for _, existing := range f.users {
		if existing.Image == u.Image {
			return false, apperror.Conflict("user image", u.Image)
		}
	}
	if u.Country == "" {
		u.Country = model.NoCountry
	}
	f.nextSeq++
	u.JoinedAt = f.nextSeq
	f.users[u.Email] = *u
	return true, nil
}

func (f *fakeUserRepo) SetCountry(_ context.Context, email, country string) (model.CountryChange, bool, error) {
	change := model.CountryChange{Email: email, Country: country}
	if f.err != nil {
		return change, false, f.err
	}
	u, ok := f.users[email]
	if !ok {
		return change, false, nil
	}
	u.Country = country
	f.users[email] = u
	return change, true, nil
}

func (f *fakeUserRepo) List(_ context.Context) ([]model.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JoinedAt < out[j].JoinedAt })
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRosterService() (*RosterService, *fakeUserRepo) {
	repo := newFakeUserRepo()
	return NewRosterService(repo, testLogger()), repo
}

// =========================================================================
// LOGIN / UPSERT
// =========================================================================

func TestLogin_NewUser(t *testing.T) {
	svc, repo := newTestRosterService()

	roster, err := svc.Login(context.Background(), "a@x.com", "A", "http://img/a.png")
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, roster.Users)
	assert.Equal(t, []string{"None"}, roster.Countries)
	assert.Equal(t, model.User{Email: "a@x.com", Name: "A", Image: "http://img/a.png", Country: "None", JoinedAt: 1},
		repo.users["a@x.com"])
}

func TestUpsertUser_ExistingEmailReturnsUnchangedRoster(t *testing.T) {
	svc, repo := newTestRosterService()
	ctx := context.Background()

	_, err := svc.UpsertUser(ctx, "a@x.com", "A", "http://img/a.png")
	require.NoError(t, err)
	_, err = svc.SetCountry(ctx, "a@x.com", "Canada")
	require.NoError(t, err)

	users, err := svc.UpsertUser(ctx, "a@x.com", "Renamed", "http://img/new.png")
	require.NoError(t, err)

	require.Len(t, users, 1)
	assert.Len(t, repo.users, 1)
	assert.Equal(t, "A", users[0].Name)
	assert.Equal(t, "Canada", users[0].Country)
}

func TestUpsertUser_Validation(t *testing.T) {
	long := func(n int) string {
		b := make([]byte, n)
		for i := range b {
			b[i] = 'x'
		}
		return string(b)
	}

	tests := []struct {
		name      string
		email     string
		userName  string
		image     string
		wantField string
	}{
		{"missing email", "", "A", "img", "email"},
		{"blank email", "   ", "A", "img", "email"},
		{"missing name", "a@x.com", "", "img", "name"},
		{"missing image", "a@x.com", "A", "", "image"},
		{"email too long", long(101), "A", "img", "email"},
		{"name too long", "a@x.com", long(81), "img", "name"},
		{"image too long", "a@x.com", "A", long(121), "image"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo := newTestRosterService()

			_, err := svc.UpsertUser(context.Background(), tt.email, tt.userName, tt.image)

			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrValidation))
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantField, appErr.Field)
			assert.Empty(t, repo.users, "nothing is stored on invalid input")
		})
	}
}

func TestUpsertUser_LimitsCountCharacters(t *testing.T) {
	svc, repo := newTestRosterService()

	// 80 characters, 160 bytes.
	name := strings.Repeat("é", MaxNameLength)

	users, err := svc.UpsertUser(context.Background(), "a@x.com", name, "http://img/a.png")

	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, name, repo.users["a@x.com"].Name)

	_, err = svc.UpsertUser(context.Background(), "b@x.com", name+"é", "http://img/b.png")
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestLogin_ImageConflict(t *testing.T) {
	svc, _ := newTestRosterService()
	ctx := context.Background()

	_, err := svc.Login(ctx, "a@x.com", "A", "http://img/same.png")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "b@x.com", "B", "http://img/same.png")
	assert.True(t, errors.Is(err, apperror.ErrConflict))
}

func TestLogin_StoreError(t *testing.T) {
	svc, repo := newTestRosterService()
	repo.err = errors.New("connection refused")

	_, err := svc.Login(context.Background(), "a@x.com", "A", "img")

	require.Error(t, err)
	assert.Equal(t, "internal_error", apperror.Code(err))
}

// =========================================================================
// HOME COUNTRY
// =========================================================================

func TestChangeCountry_UpdatesOnlyThatUser(t *testing.T) {
	svc, _ := newTestRosterService()
	ctx := context.Background()
	_, err := svc.Login(ctx, "a@x.com", "A", "http://img/a.png")
	require.NoError(t, err)
	_, err = svc.Login(ctx, "b@x.com", "B", "http://img/b.png")
	require.NoError(t, err)

	roster, err := svc.ChangeCountry(ctx, "a@x.com", "Canada")
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, roster.Users)
	assert.Equal(t, []string{"Canada", "None"}, roster.Countries)
}

func TestSetCountry_UnknownEmailIsNoop(t *testing.T) {
	svc, repo := newTestRosterService()
	ctx := context.Background()
	_, err := svc.Login(ctx, "a@x.com", "A", "http://img/a.png")
	require.NoError(t, err)

	change, err := svc.SetCountry(ctx, "ghost@x.com", "Peru")
	require.NoError(t, err)

	assert.Equal(t, model.CountryChange{Email: "ghost@x.com", Country: "Peru"}, change)
	assert.Equal(t, "None", repo.users["a@x.com"].Country)
	assert.Len(t, repo.users, 1)
}

func TestSetCountry_RequiresLogin(t *testing.T) {
	svc, _ := newTestRosterService()

	_, err := svc.SetCountry(context.Background(), "", "Canada")

	assert.True(t, errors.Is(err, apperror.ErrValidation))
}

func TestSetCountry_RequiresCountry(t *testing.T) {
	svc, _ := newTestRosterService()

	_, err := svc.ChangeCountry(context.Background(), "a@x.com", "  ")

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "country", appErr.Field)
}

func TestRoster_Empty(t *testing.T) {
	svc, _ := newTestRosterService()

	roster, err := svc.Roster(context.Background())
	require.NoError(t, err)

	assert.NotNil(t, roster.Users)
	assert.Empty(t, roster.Users)
	assert.Equal(t, len(roster.Users), len(roster.Countries))
}

package sqldb

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/covid-dashboard/internal/apperror"
	"github.com/sakif/covid-dashboard/internal/model"
	"github.com/sakif/covid-dashboard/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// CreateIfNotExists inserts a user unless their email is already stored.
//
// ON CONFLICT (email) DO NOTHING makes "look up, then insert" a single
// statement, so two logins racing on the same email cannot both insert. The
// conflict target is the email only: a second user reusing someone else's
// image still violates the UNIQUE(image) constraint and comes back as
// apperror.ErrConflict.
func (db *DB) CreateIfNotExists(ctx context.Context, user *model.User) (bool, error) {
	if user.Country == "" {
		user.Country = model.NoCountry
	}
	if user.JoinedAt == 0 {
		user.JoinedAt = time.Now().UnixNano()
	}

	res, err := db.conn.ExecContext(ctx, db.conn.Rebind(
		`INSERT INTO user_data (email, name, image, country, joined_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (email) DO NOTHING`),
		user.Email,
		user.Name,
		user.Image,
		user.Country,
		user.JoinedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, apperror.Conflict("user image", user.Image)
		}
		return false, fmt.Errorf("sqldb: inserting user %s: %w", user.Email, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqldb: rows affected for user %s: %w", user.Email, err)
	}
	return n > 0, nil
}

// SetCountry updates the home country for email. Unknown emails leave the
// table unchanged and report updated=false.
func (db *DB) SetCountry(ctx context.Context, email, country string) (model.CountryChange, bool, error) {
	change := model.CountryChange{Email: email, Country: country}

	res, err := db.conn.ExecContext(ctx, db.conn.Rebind(
		`UPDATE user_data SET country = ? WHERE email = ?`),
		country, email,
	)
	if err != nil {
		return change, false, fmt.Errorf("sqldb: setting country for %s: %w", email, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return change, false, fmt.Errorf("sqldb: rows affected for %s: %w", email, err)
	}
	return change, n > 0, nil
}

// List returns all users ordered by when they joined.
func (db *DB) List(ctx context.Context) ([]model.User, error) {
	users := []model.User{}
	err := db.conn.SelectContext(ctx, &users,
		`SELECT email, name, image, country, joined_at
		 FROM user_data
		 ORDER BY joined_at, email`)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing users: %w", err)
	}
	return users, nil
}

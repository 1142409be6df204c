// Package repository declares the storage contracts the service layer depends on.
package repository

import (
	"context"

	"github.com/sakif/covid-dashboard/internal/model"
)

// UserRepository persists dashboard users and their home country.
type UserRepository interface {
	// CreateIfNotExists inserts user unless a row with the same email exists.
	// It reports whether a row was inserted. An existing row is left untouched.
	CreateIfNotExists(ctx context.Context, user *model.User) (bool, error)

	// SetCountry sets the home country of the user with the given email.
	// An unknown email is not an error: the store is unchanged and updated is false.
	SetCountry(ctx context.Context, email, country string) (change model.CountryChange, updated bool, err error)

	// List returns every user in the order they first joined.
	List(ctx context.Context) ([]model.User, error)
}

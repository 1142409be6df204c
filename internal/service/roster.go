package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/covid-dashboard/internal/apperror"
	"github.com/sakif/covid-dashboard/internal/model"
	"github.com/sakif/covid-dashboard/internal/repository"
)

// Column limits of the user_data table, in characters.
const (
	MaxEmailLength   = 100
	MaxNameLength    = 80
	MaxImageLength   = 120
	MaxCountryLength = 50
)

// RosterService manages users and their home countries.
type RosterService struct {
	repo   repository.UserRepository
	logger *slog.Logger
}

func NewRosterService(repo repository.UserRepository, logger *slog.Logger) *RosterService {
	return &RosterService{
		repo:   repo,
		logger: logger,
	}
}

// UpsertUser stores the user unless their email is already known and returns
// every stored user. A known email leaves the stored row as it is, even if
// name or image differ.
func (s *RosterService) UpsertUser(ctx context.Context, email, name, image string) ([]model.User, error) {
	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	image = strings.TrimSpace(image)

	if err := validateText("email", email, MaxEmailLength); err != nil {
		return nil, err
	}
	if err := validateText("name", name, MaxNameLength); err != nil {
		return nil, err
	}
	if err := validateText("image", image, MaxImageLength); err != nil {
		return nil, err
	}

	user := &model.User{Email: email, Name: name, Image: image}
	created, err := s.repo.CreateIfNotExists(ctx, user)
	if err != nil {
		return nil, err
	}
	if created {
		s.logger.Info("user added", "email", email)
	}

	return s.repo.List(ctx)
}

// Login registers the user if needed and returns the roster to broadcast.
func (s *RosterService) Login(ctx context.Context, email, name, image string) (model.Roster, error) {
	users, err := s.UpsertUser(ctx, email, name, image)
	if err != nil {
		return model.Roster{}, err
	}
	return model.NewRoster(users), nil
}

// SetCountry sets the home country of the user with email.
//
// UNKNOWN EMAIL:
// A session only knows an email after a successful login, so a miss here means
// the row was removed behind our back. That is logged and otherwise ignored;
// the returned pair is the same either way.
func (s *RosterService) SetCountry(ctx context.Context, email, country string) (model.CountryChange, error) {
	country = strings.TrimSpace(country)
	if email == "" {
		return model.CountryChange{}, apperror.ValidationFailed("email", "log in before choosing a home country")
	}
	if err := validateText("country", country, MaxCountryLength); err != nil {
		return model.CountryChange{}, err
	}

	change, updated, err := s.repo.SetCountry(ctx, email, country)
	if err != nil {
		return model.CountryChange{}, err
	}
	if !updated {
		s.logger.Warn("home country for unknown user ignored", "email", email, "country", country)
	}
	return change, nil
}

// ChangeCountry sets the home country and returns the roster to broadcast.
func (s *RosterService) ChangeCountry(ctx context.Context, email, country string) (model.Roster, error) {
	if _, err := s.SetCountry(ctx, email, country); err != nil {
		return model.Roster{}, err
	}
	return s.Roster(ctx)
}

// Roster returns every user's name and home country as parallel lists.
func (s *RosterService) Roster(ctx context.Context) (model.Roster, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return model.Roster{}, err
	}
	return model.NewRoster(users), nil
}

func validateText(field, value string, max int) error {
	if value == "" {
		return apperror.ValidationFailed(field, field+" is required")
	}
	if utf8.RuneCountInString(value) > max {
		return apperror.ValidationFailed(field, fmt.Sprintf("%s must be at most %d characters", field, max))
	}
	return nil
}

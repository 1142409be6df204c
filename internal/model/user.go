// Package model defines the data structures used throughout the application.
package model

// NoCountry is the home country a user starts with until they pick one.
const NoCountry = "None"

// User is one row of the user store, keyed by email.
//
// The JSON tags match the field names the dashboard client reads from the
// roster, so a User can be emitted as-is. JoinedAt is storage-only: it fixes
// the order in which users appear in the roster table.
type User struct {
	Email    string `json:"email"   db:"email"`
	Name     string `json:"name"    db:"name"`
	Image    string `json:"image"   db:"image"`
	Country  string `json:"country" db:"country"`
	JoinedAt int64  `json:"-"       db:"joined_at"`
}

// CountryChange is the result of setting a user's home country.
type CountryChange struct {
	Email   string `json:"email"`
	Country string `json:"country"`
}

// Roster is the users table as the client renders it: two parallel slices,
// one entry per stored user, index i of each describing the same user.
type Roster struct {
	Users     []string `json:"users"`
	Countries []string `json:"countries"`
}

// NewRoster builds a Roster from users, preserving their order.
func NewRoster(users []User) Roster {
	r := Roster{
		Users:     make([]string, 0, len(users)),
		Countries: make([]string, 0, len(users)),
	}
	for _, u := range users {
		r.Users = append(r.Users, u.Name)
		r.Countries = append(r.Countries, u.Country)
	}
	return r
}

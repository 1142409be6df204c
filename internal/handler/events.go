// Package handler contains the dashboard's realtime event handlers and its
// small HTTP surface (static assets and health).
//
// EVENT HANDLERS:
// Each inbound event maps to one method on Events. A method decodes its
// payload, calls a service, and returns a realtime.Reply naming the outbound
// event and its audience. The hub does the sending, so handlers never touch a
// connection.
//
//	inbound          outbound      audience
//	(connect)        connect       self
//	login            content       others
//	getstate         States        all
//	news             news          all
//	home             home          all
//	about            about         all
//	newHomeCountry   newContent    others
//	search_country   search_country self
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/sakif/covid-dashboard/internal/apperror"
	"github.com/sakif/covid-dashboard/internal/model"
	"github.com/sakif/covid-dashboard/internal/realtime"
)

// Event names. They are part of the client contract and case-sensitive.
const (
	EventConnect        = "connect"
	EventLogin          = "login"
	EventContent        = "content"
	EventGetState       = "getstate"
	EventStates         = "States"
	EventNews           = "news"
	EventHome           = "home"
	EventAbout          = "about"
	EventNewHomeCountry = "newHomeCountry"
	EventNewContent     = "newContent"
	EventSearchCountry  = "search_country"
)

// StatsProvider is implemented by *service.StatsService.
type StatsProvider interface {
	Summary(ctx context.Context) (model.SummaryPayload, error)
	Provinces(ctx context.Context, country string) (model.ProvinceBreakdown, error)
	CountryTotal(ctx context.Context, country string) (model.CountryTotal, error)
	News(ctx context.Context) (model.NewsDigest, error)
}

// RosterManager is implemented by *service.RosterService.
type RosterManager interface {
	Login(ctx context.Context, email, name, image string) (model.Roster, error)
	ChangeCountry(ctx context.Context, email, country string) (model.Roster, error)
}

// Events handles every realtime event of the dashboard.
type Events struct {
	stats  StatsProvider
	roster RosterManager
	logger *slog.Logger
}

func NewEvents(stats StatsProvider, roster RosterManager, logger *slog.Logger) *Events {
	return &Events{
		stats:  stats,
		roster: roster,
		logger: logger,
	}
}

// Register attaches every handler to r.
func (e *Events) Register(r *realtime.Router) {
	r.OnConnect(e.HandleConnect)
	r.On(EventLogin, e.HandleLogin)
	r.On(EventGetState, e.HandleGetState)
	r.On(EventNews, e.HandleNews)
	r.On(EventHome, marker(EventHome))
	r.On(EventAbout, marker(EventAbout))
	r.On(EventNewHomeCountry, e.HandleNewHomeCountry)
	r.On(EventSearchCountry, e.HandleSearchCountry)
}

type loginPayload struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Image string `json:"image"`
}

type countryPayload struct {
	Country string `json:"country"`
}

// HandleConnect sends the country summary to the client that just connected.
func (e *Events) HandleConnect(ctx context.Context, _ *realtime.Session, _ json.RawMessage) (realtime.Reply, error) {
	summary, err := e.stats.Summary(ctx)
	if err != nil {
		return realtime.Reply{}, err
	}
	return realtime.Reply{Event: EventConnect, Data: summary, Audience: realtime.Self}, nil
}

// HandleLogin registers the user, remembers their email on the session and
// sends the roster to everyone else.
func (e *Events) HandleLogin(ctx context.Context, sess *realtime.Session, data json.RawMessage) (realtime.Reply, error) {
	var p loginPayload
	if err := decode(data, &p); err != nil {
		return realtime.Reply{}, err
	}

	roster, err := e.roster.Login(ctx, p.Email, p.Name, p.Image)
	if err != nil {
		return realtime.Reply{}, err
	}
	sess.Email = strings.TrimSpace(p.Email)

	return realtime.Reply{Event: EventContent, Data: roster, Audience: realtime.Others}, nil
}

// HandleGetState broadcasts the province breakdown of a country.
func (e *Events) HandleGetState(ctx context.Context, _ *realtime.Session, data json.RawMessage) (realtime.Reply, error) {
	var p countryPayload
	if err := decode(data, &p); err != nil {
		return realtime.Reply{}, err
	}

	breakdown, err := e.stats.Provinces(ctx, p.Country)
	if err != nil {
		return realtime.Reply{}, err
	}
	return realtime.Reply{Event: EventStates, Data: breakdown, Audience: realtime.All}, nil
}

// HandleNews broadcasts the latest headlines.
func (e *Events) HandleNews(ctx context.Context, _ *realtime.Session, _ json.RawMessage) (realtime.Reply, error) {
	news, err := e.stats.News(ctx)
	if err != nil {
		return realtime.Reply{}, err
	}
	return realtime.Reply{Event: EventNews, Data: news, Audience: realtime.All}, nil
}

// HandleNewHomeCountry sets the home country of the user logged in on this
// connection and sends the roster to everyone else.
func (e *Events) HandleNewHomeCountry(ctx context.Context, sess *realtime.Session, data json.RawMessage) (realtime.Reply, error) {
	var p countryPayload
	if err := decode(data, &p); err != nil {
		return realtime.Reply{}, err
	}

	roster, err := e.roster.ChangeCountry(ctx, sess.Email, p.Country)
	if err != nil {
		return realtime.Reply{}, err
	}
	return realtime.Reply{Event: EventNewContent, Data: roster, Audience: realtime.Others}, nil
}

// HandleSearchCountry answers the requester with a country's latest totals.
func (e *Events) HandleSearchCountry(ctx context.Context, _ *realtime.Session, data json.RawMessage) (realtime.Reply, error) {
	var p countryPayload
	if err := decode(data, &p); err != nil {
		return realtime.Reply{}, err
	}

	total, err := e.stats.CountryTotal(ctx, p.Country)
	if err != nil {
		return realtime.Reply{}, err
	}
	return realtime.Reply{Event: EventSearchCountry, Data: total, Audience: realtime.Self}, nil
}

// marker returns a handler that echoes event to everyone with no payload.
// The client uses these for page navigation.
func marker(event string) realtime.HandlerFunc {
	return func(context.Context, *realtime.Session, json.RawMessage) (realtime.Reply, error) {
		return realtime.Reply{Event: event, Audience: realtime.All}, nil
	}
}

// decode unmarshals an event payload into v.
func decode(data json.RawMessage, v any) error {
	if len(data) == 0 || string(data) == "null" {
		return apperror.ValidationFailed("data", "event payload is required")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperror.ValidationFailed("data", "event payload is not valid JSON for this event")
	}
	return nil
}

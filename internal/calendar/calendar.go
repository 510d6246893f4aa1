// Package calendar handles the Google OAuth flow and inserts events into a
// Google Calendar.
package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/lehigh-university-libraries/calsnap/internal/common"
	"github.com/lehigh-university-libraries/calsnap/internal/models"
)

const userInfoEmailScope = "https://www.googleapis.com/auth/userinfo.email"

// DefaultDuration is used when a draft has no end time.
const DefaultDuration = time.Hour

type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	CalendarID   string
	Location     *time.Location
	// Endpoint overrides the Google OAuth endpoints.
	Endpoint *oauth2.Endpoint
	// HTTPClient is the base client for token and calendar requests.
	HTTPClient *http.Client
	// ServiceOptions are appended when building the calendar service.
	ServiceOptions []option.ClientOption
}

// Tokens is the credential pair stored on an account.
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// Created describes one event inserted into the calendar. Index is the
// position of the source draft in the publish request.
type Created struct {
	Index   int    `json:"-"`
	EventID string `json:"eventId"`
	Title   string `json:"title"`
}

type Publisher struct {
	oauth       *oauth2.Config
	calendarID  string
	loc         *time.Location
	httpClient  *http.Client
	serviceOpts []option.ClientOption
	logger      *slog.Logger
}

func NewPublisher(opts Options, logger *slog.Logger) *Publisher {
	endpoint := google.Endpoint
	if opts.Endpoint != nil {
		endpoint = *opts.Endpoint
	}
	if opts.CalendarID == "" {
		opts.CalendarID = "primary"
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.RedirectURL,
			Scopes:       []string{gcal.CalendarScope, userInfoEmailScope},
			Endpoint:     endpoint,
		},
		calendarID:  opts.CalendarID,
		loc:         opts.Location,
		httpClient:  opts.HTTPClient,
		serviceOpts: opts.ServiceOptions,
		logger:      logger,
	}
}

func (p *Publisher) context(ctx context.Context) context.Context {
	if p.httpClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}
	return ctx
}

// AuthURL returns the consent page URL requesting offline access.
func (p *Publisher) AuthURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens. The refresh token may be
// empty when Google does not issue a new one.
func (p *Publisher) Exchange(ctx context.Context, code string) (*Tokens, error) {
	tok, err := p.oauth.Exchange(p.context(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange: %w", common.ErrExternalService, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: token exchange returned no access token", common.ErrExternalService)
	}
	return &Tokens{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}, nil
}

// Refresh obtains a new access token from a refresh token.
func (p *Publisher) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	if refreshToken == "" {
		return nil, common.ErrAuthRequired
	}
	tok, err := p.oauth.TokenSource(p.context(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: token refresh: %w", common.ErrExternalService, err)
	}
	return &Tokens{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}, nil
}

// Publish inserts every draft it can and returns the successes in input order.
// Failed drafts are logged and skipped. The access token is used as given.
func (p *Publisher) Publish(ctx context.Context, tokens Tokens, drafts []models.EventDraft) ([]Created, error) {
	if tokens.AccessToken == "" {
		return nil, common.ErrAuthRequired
	}

	ctx = p.context(ctx)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		TokenType:    "Bearer",
	}))

	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, p.serviceOpts...)
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}

	created := []Created{}
	for i, d := range drafts {
		event, err := p.toCalendarEvent(d)
		if err != nil {
			p.logger.Error("Skipping event with invalid time", "index", i, "title", d.Title, "err", err)
			continue
		}

		inserted, err := svc.Events.Insert(p.calendarID, event).Context(ctx).Do()
		if err != nil {
			p.logger.Error("Failed to create calendar event", "index", i, "title", d.Title, "err", err)
			continue
		}
		created = append(created, Created{Index: i, EventID: inserted.Id, Title: d.Title})
	}

	p.logger.Info("Published events to Google Calendar", "requested", len(drafts), "created", len(created), "calendarID", p.calendarID)
	return created, nil
}

func (p *Publisher) toCalendarEvent(d models.EventDraft) (*gcal.Event, error) {
	start, end, err := EventTimes(d, p.loc)
	if err != nil {
		return nil, err
	}

	event := &gcal.Event{
		Summary: d.Title,
		Start:   &gcal.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: p.loc.String()},
		End:     &gcal.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: p.loc.String()},
	}
	if d.Location != nil {
		event.Location = *d.Location
	}
	if d.Description != nil {
		event.Description = *d.Description
	}
	return event, nil
}

// EventTimes resolves a draft's start and end in loc. Without an end time the
// event lasts DefaultDuration; an end at or before the start rolls to the
// next day.
func EventTimes(d models.EventDraft, loc *time.Location) (time.Time, time.Time, error) {
	const layout = models.DateLayout + " " + models.TimeLayout

	start, err := time.ParseInLocation(layout, d.Date+" "+d.StartTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start: %w", err)
	}
	if d.EndTime == nil || *d.EndTime == "" {
		return start, start.Add(DefaultDuration), nil
	}

	end, err := time.ParseInLocation(layout, d.Date+" "+*d.EndTime, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end: %w", err)
	}
	if !end.After(start) {
		end = end.AddDate(0, 0, 1)
	}
	return start, end, nil
}

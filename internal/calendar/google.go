package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GoogleConfig holds the credentials of the trainer's Google Calendar.
type GoogleConfig struct {
	CalendarID   string
	ClientID     string
	ClientSecret string
	RefreshToken string
	TimeZone     string
}

// GoogleGateway implements Gateway on top of the Google Calendar v3 API.
type GoogleGateway struct {
	service    *gcal.Service
	calendarID string
	location   *time.Location
	logger     *zap.Logger
}

var _ Gateway = (*GoogleGateway)(nil)

// NewGoogleGateway creates a gateway. When a refresh token is configured, requests are
// authorized with an auto-refreshing OAuth2 token source; extra client options are applied last.
func NewGoogleGateway(ctx context.Context, cfg GoogleConfig, logger *zap.Logger, opts ...option.ClientOption) (*GoogleGateway, error) {
	if cfg.CalendarID == "" {
		return nil, errors.New("calendar id is required")
	}
	loc := time.UTC
	if cfg.TimeZone != "" {
		l, err := time.LoadLocation(cfg.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("load calendar timezone %q: %w", cfg.TimeZone, err)
		}
		loc = l
	}

	var clientOpts []option.ClientOption
	if cfg.RefreshToken != "" {
		oauthCfg := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{gcal.CalendarEventsScope},
		}
		tokenSource := oauthCfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.RefreshToken})
		clientOpts = append(clientOpts, option.WithTokenSource(tokenSource))
	}
	clientOpts = append(clientOpts, opts...)

	service, err := gcal.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleGateway{
		service:    service,
		calendarID: cfg.CalendarID,
		location:   loc,
		logger:     logger,
	}, nil
}

func (g *GoogleGateway) CalendarID() string {
	return g.calendarID
}

func (g *GoogleGateway) CreateEvent(ctx context.Context, event Event) (string, error) {
	ev := &gcal.Event{
		Id:          event.ID,
		Summary:     event.Summary,
		Description: event.Description,
		Start:       g.toEventDateTime(event.Start),
		End:         g.toEventDateTime(event.End),
	}
	created, err := g.service.Events.Insert(g.calendarID, ev).Context(ctx).Do()
	if err != nil {
		if event.ID != "" && statusCode(err) == http.StatusConflict {
			if err := g.reviveEvent(ctx, ev); err != nil {
				return "", err
			}
			return event.ID, nil
		}
		return "", wrap("insert event", err)
	}
	return created.Id, nil
}

// reviveEvent handles an insert that collided with an existing id. A deleted event keeps its
// id with status cancelled, so it is restored with the new contents; a live one is left alone.
func (g *GoogleGateway) reviveEvent(ctx context.Context, ev *gcal.Event) error {
	existing, err := g.service.Events.Get(g.calendarID, ev.Id).Context(ctx).Do()
	if err != nil {
		return wrap("get event", err)
	}
	if existing.Status != StatusCancelled {
		g.logger.Debug("calendar event already exists", zap.String("event_id", ev.Id))
		return nil
	}

	ev.Status = StatusConfirmed
	if _, err := g.service.Events.Update(g.calendarID, ev.Id, ev).Context(ctx).Do(); err != nil {
		return wrap("restore event", err)
	}
	g.logger.Info("restored cancelled calendar event", zap.String("event_id", ev.Id))
	return nil
}

func (g *GoogleGateway) UpdateEvent(ctx context.Context, eventID string, update EventUpdate) error {
	patch := &gcal.Event{
		Summary:     update.Summary,
		Description: update.Description,
	}
	if _, err := g.service.Events.Patch(g.calendarID, eventID, patch).Context(ctx).Do(); err != nil {
		return wrap("patch event", err)
	}
	return nil
}

func (g *GoogleGateway) DeleteEvent(ctx context.Context, eventID string) error {
	err := g.service.Events.Delete(g.calendarID, eventID).Context(ctx).Do()
	switch code := statusCode(err); {
	case err == nil, code == http.StatusNotFound, code == http.StatusGone:
		return nil
	}
	return wrap("delete event", err)
}

func (g *GoogleGateway) ListEvents(ctx context.Context, from, to time.Time) ([]Event, error) {
	call := g.service.Events.List(g.calendarID).
		TimeMin(from.Format(time.RFC3339)).
		TimeMax(to.Format(time.RFC3339)).
		SingleEvents(true).
		ShowDeleted(false).
		OrderBy("startTime")

	events := []Event{}
	err := call.Pages(ctx, func(page *gcal.Events) error {
		for _, item := range page.Items {
			ev, err := g.fromGoogle(item)
			if err != nil {
				g.logger.Warn("skipping calendar event with unreadable time",
					zap.String("event_id", item.Id), zap.Error(err))
				continue
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, wrap("list events", err)
	}
	return events, nil
}

func (g *GoogleGateway) toEventDateTime(t time.Time) *gcal.EventDateTime {
	return &gcal.EventDateTime{
		DateTime: t.In(g.location).Format(time.RFC3339),
		TimeZone: g.location.String(),
	}
}

func (g *GoogleGateway) fromGoogle(item *gcal.Event) (Event, error) {
	ev := Event{
		ID:          item.Id,
		Summary:     item.Summary,
		Description: item.Description,
		Status:      item.Status,
	}
	start, allDay, err := g.parseEventDateTime(item.Start)
	if err != nil {
		return Event{}, err
	}
	end, _, err := g.parseEventDateTime(item.End)
	if err != nil {
		return Event{}, err
	}
	ev.Start, ev.End, ev.AllDay = start, end, allDay
	for _, a := range item.Attendees {
		ev.Attendees = append(ev.Attendees, Attendee{
			Email:       a.Email,
			DisplayName: a.DisplayName,
			Organizer:   a.Organizer,
		})
	}
	return ev, nil
}

func (g *GoogleGateway) parseEventDateTime(edt *gcal.EventDateTime) (time.Time, bool, error) {
	if edt == nil {
		return time.Time{}, false, errors.New("missing event time")
	}
	if edt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, edt.DateTime)
		return t, false, err
	}
	if edt.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", edt.Date, g.location)
		return t, true, err
	}
	return time.Time{}, false, errors.New("missing event time")
}

func statusCode(err error) int {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

func wrap(op string, err error) error {
	switch statusCode(err) {
	case http.StatusNotFound, http.StatusGone:
		return fmt.Errorf("%s: %w", op, ErrEventNotFound)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

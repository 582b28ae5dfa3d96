package service

import (
	"alcyxob/fitness-calendar/internal/domain"
	"alcyxob/fitness-calendar/internal/metrics"
	"time"

	"go.uber.org/zap"
)

// Defaults for the calendar services.
const (
	DefaultEventDuration = time.Hour
	DefaultSettleDelay   = time.Second
	DefaultImportPast    = 7 * 24 * time.Hour
	DefaultImportFuture  = 7 * 24 * time.Hour
)

// options are shared by the schedule and calendar sync services.
type options struct {
	clock    func() time.Time
	location *time.Location
	logger   *zap.Logger
	metrics  *metrics.Metrics

	eventDuration time.Duration
	settleDelay   time.Duration
	importPast    time.Duration
	importFuture  time.Duration
	resyncScope   domain.ResyncScope
}

// Option configures a service.
type Option func(*options)

func defaultOptions() options {
	return options{
		clock:         time.Now,
		location:      time.UTC,
		logger:        zap.NewNop(),
		eventDuration: DefaultEventDuration,
		settleDelay:   DefaultSettleDelay,
		importPast:    DefaultImportPast,
		importFuture:  DefaultImportFuture,
		resyncScope:   domain.ScopeCurrentMonthAndFuture,
	}
}

func newOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithClock overrides the wall clock.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLocation sets the time zone that defines "today" and calendar months.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithEventDuration sets the length of events pushed to the calendar.
func WithEventDuration(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.eventDuration = d
		}
	}
}

// WithSettleDelay sets the pause after a successful external delete. Zero disables it.
func WithSettleDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.settleDelay = d
		}
	}
}

// WithImportWindow sets how far back and ahead the calendar import looks.
func WithImportWindow(past, future time.Duration) Option {
	return func(o *options) {
		if past >= 0 {
			o.importPast = past
		}
		if future > 0 {
			o.importFuture = future
		}
	}
}

// WithResyncScope sets the scope of resync jobs enqueued after a mutation.
func WithResyncScope(scope domain.ResyncScope) Option {
	return func(o *options) {
		if scope.Valid() {
			o.resyncScope = scope
		}
	}
}

package calendar

import (
	"alcyxob/fitness-calendar/internal/repository"
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// ErrNotConnected is returned for a trainer who has not connected a calendar.
var ErrNotConnected = errors.New("trainer has not connected a calendar")

// Provider resolves the external calendar of a trainer. Every trainer has their own.
type Provider interface {
	ForTrainer(ctx context.Context, trainerID primitive.ObjectID) (Gateway, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, trainerID primitive.ObjectID) (Gateway, error)

func (f ProviderFunc) ForTrainer(ctx context.Context, trainerID primitive.ObjectID) (Gateway, error) {
	return f(ctx, trainerID)
}

// MemoryProvider hands every trainer a separate in-process calendar.
type MemoryProvider struct {
	mu         sync.Mutex
	calendarID string
	gateways   map[primitive.ObjectID]*MemoryGateway
}

var _ Provider = (*MemoryProvider)(nil)

func NewMemoryProvider(calendarID string) *MemoryProvider {
	return &MemoryProvider{
		calendarID: calendarID,
		gateways:   make(map[primitive.ObjectID]*MemoryGateway),
	}
}

func (p *MemoryProvider) ForTrainer(_ context.Context, trainerID primitive.ObjectID) (Gateway, error) {
	return p.Gateway(trainerID), nil
}

// Gateway returns the trainer's calendar, creating it on first use.
func (p *MemoryProvider) Gateway(trainerID primitive.ObjectID) *MemoryGateway {
	p.mu.Lock()
	defer p.mu.Unlock()
	gw, ok := p.gateways[trainerID]
	if !ok {
		gw = NewMemoryGateway(p.calendarID)
		p.gateways[trainerID] = gw
	}
	return gw
}

// GoogleProviderConfig holds the OAuth client shared by all trainers.
type GoogleProviderConfig struct {
	ClientID     string
	ClientSecret string
	// DefaultCalendarID is used when the stored credentials name no calendar.
	DefaultCalendarID string
	TimeZone          string
}

type cachedGateway struct {
	calendarID   string
	refreshToken string
	gateway      Gateway
}

// GoogleProvider builds a GoogleGateway per trainer from the stored credentials and reuses
// it until the credentials change.
type GoogleProvider struct {
	baseCtx context.Context
	creds   repository.CalendarCredentialsRepository
	cfg     GoogleProviderConfig
	opts    []option.ClientOption
	logger  *zap.Logger

	build func(ctx context.Context, cfg GoogleConfig) (Gateway, error)

	mu    sync.Mutex
	cache map[primitive.ObjectID]cachedGateway
}

var _ Provider = (*GoogleProvider)(nil)

// NewGoogleProvider creates a provider. baseCtx outlives single requests and carries the
// token refreshes of the built gateways.
func NewGoogleProvider(
	baseCtx context.Context,
	creds repository.CalendarCredentialsRepository,
	cfg GoogleProviderConfig,
	logger *zap.Logger,
	opts ...option.ClientOption,
) *GoogleProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &GoogleProvider{
		baseCtx: baseCtx,
		creds:   creds,
		cfg:     cfg,
		opts:    opts,
		logger:  logger,
		cache:   make(map[primitive.ObjectID]cachedGateway),
	}
	p.build = func(ctx context.Context, gcfg GoogleConfig) (Gateway, error) {
		return NewGoogleGateway(ctx, gcfg, p.logger, p.opts...)
	}
	return p
}

func (p *GoogleProvider) ForTrainer(ctx context.Context, trainerID primitive.ObjectID) (Gateway, error) {
	creds, err := p.creds.GetByTrainerID(ctx, trainerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotConnected
		}
		return nil, fmt.Errorf("load calendar credentials: %w", err)
	}
	calendarID := creds.CalendarID
	if calendarID == "" {
		calendarID = p.cfg.DefaultCalendarID
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.cache[trainerID]; ok && c.calendarID == calendarID && c.refreshToken == creds.RefreshToken {
		return c.gateway, nil
	}

	gw, err := p.build(p.baseCtx, GoogleConfig{
		CalendarID:   calendarID,
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		RefreshToken: creds.RefreshToken,
		TimeZone:     p.cfg.TimeZone,
	})
	if err != nil {
		return nil, fmt.Errorf("build calendar gateway: %w", err)
	}
	p.cache[trainerID] = cachedGateway{calendarID: calendarID, refreshToken: creds.RefreshToken, gateway: gw}
	p.logger.Debug("calendar gateway built",
		zap.String("trainer_id", trainerID.Hex()),
		zap.String("calendar_id", calendarID))
	return gw, nil
}

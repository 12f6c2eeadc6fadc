package syncsvc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rickgao/parking-sync/internal/api"
	"github.com/rickgao/parking-sync/internal/audit"
	"github.com/rickgao/parking-sync/internal/clock"
	"github.com/rickgao/parking-sync/internal/config"
	"github.com/rickgao/parking-sync/internal/connection"
	"github.com/rickgao/parking-sync/internal/dispatch"
	"github.com/rickgao/parking-sync/internal/poller"
	"github.com/rickgao/parking-sync/internal/store"
	"github.com/rickgao/parking-sync/internal/zonecache"
)

// Connection status strings shown to operators.
const (
	StatusConnected        = "connected"
	StatusConnecting       = "connecting"
	StatusDisconnected     = "disconnected"
	StatusConnectionFailed = "connection failed"
)

// Service is the composition root of the sync layer.
type Service struct {
	cfg    *config.Config
	logger *zap.Logger
	clock  clock.Clock
	store  store.Store
	source poller.SnapshotSource

	events  *dispatch.Dispatcher
	manager *connection.Manager
	cache   *zonecache.Cache
	audit   *audit.Ring
	poller  *poller.Poller

	mu          sync.Mutex
	started     bool
	disposed    bool
	saveTimer   clock.Timer
	saveCtx     context.Context
	saveCancel  context.CancelFunc
	lastSaveErr error
}

type options struct {
	clock  clock.Clock
	dialer connection.Dialer
	logger *zap.Logger
	source poller.SnapshotSource
}

// Option configures a Service.
type Option func(*options)

// WithClock replaces the real clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d connection.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithSnapshotSource replaces the REST client used for seeding.
func WithSnapshotSource(src poller.SnapshotSource) Option {
	return func(o *options) { o.source = src }
}

// New builds a Service from cfg. st receives persisted state.
func New(cfg *config.Config, st store.Store, opts ...Option) *Service {
	o := options{
		clock:  clock.Real(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger.With(zap.String("instance", cfg.Instance.ID))

	if o.source == nil {
		o.source = api.NewClient(cfg.API.RestURL,
			api.WithTimeout(cfg.API.Timeout),
			api.WithRetries(cfg.API.MaxRetries, time.Second),
			api.WithRateLimit(cfg.API.RateLimit, cfg.API.RateBurst),
			api.WithLogger(logger.Named("api")),
		)
	}

	events := dispatch.New(logger.Named("dispatch"))

	managerOpts := []connection.Option{
		connection.WithClock(o.clock),
		connection.WithLogger(logger.Named("connection")),
	}
	if o.dialer != nil {
		managerOpts = append(managerOpts, connection.WithDialer(o.dialer))
	}

	s := &Service{
		cfg:     cfg,
		logger:  logger,
		clock:   o.clock,
		store:   st,
		source:  o.source,
		events:  events,
		manager: connection.NewManager(ManagerConfig(cfg.Feed), events, managerOpts...),
		cache:   zonecache.New(events, o.clock, logger),
		audit:   audit.New(events, o.clock, logger),
	}
	s.poller = poller.New(poller.Config{Interval: cfg.Poller.Interval}, s.source,
		poller.SnapshotHandlerFunc(s.applySnapshot), logger)

	// Registered before any other consumer so offline mode is current by
	// the time they observe the event.
	events.On(dispatch.EventConnected, func(any) {
		s.cache.SetOfflineMode(false)
	})
	events.On(dispatch.EventMaxReconnectAttempts, func(data any) {
		s.logger.Error("feed unreachable, switching to offline mode", zap.Any("attempts", data))
		s.cache.SetOfflineMode(true)
	})

	return s
}

// ManagerConfig maps feed configuration onto the Connection Manager.
func ManagerConfig(feed config.FeedConfig) connection.ManagerConfig {
	return connection.ManagerConfig{
		URL:                   feed.URL,
		ClientID:              feed.ClientID,
		BaseReconnectInterval: feed.ReconnectBaseDelay,
		MaxReconnectDelay:     feed.ReconnectMaxDelay,
		MaxReconnectAttempts:  feed.MaxReconnectAttempts,
		ReconnectJitter:       feed.ReconnectJitter,
		ForceReconnectDelay:   feed.ForceReconnectDelay,
		HeartbeatInterval:     feed.HeartbeatInterval,
		DialTimeout:           feed.DialTimeout,
		WriteTimeout:          feed.WriteTimeout,
		ReadLimit:             feed.ReadLimit,
		MaxPendingMessages:    feed.MaxPendingMessages,
	}
}

// Init rehydrates persisted state, seeds from the REST API, subscribes the
// terminal's gates and connects. A failed seed is logged and the cached
// data is kept.
func (s *Service) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return errors.New("service already initialized")
	}
	s.started = true
	s.saveCtx, s.saveCancel = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	s.restore(ctx)

	if err := s.seed(ctx); err != nil {
		s.logger.Warn("seeding from api failed, using cached data", zap.Error(err))
	}

	for _, topic := range s.topics() {
		s.manager.Subscribe(topic)
	}
	s.manager.Init()

	s.mu.Lock()
	s.scheduleSaveLocked()
	s.mu.Unlock()

	if err := s.poller.Start(ctx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	s.logger.Info("sync service started",
		zap.String("feed", s.cfg.Feed.URL),
		zap.Int("zones", len(s.cache.Zones())),
	)
	return nil
}

// Dispose stops background work, saves state and closes the connection.
// It is safe to call more than once.
func (s *Service) Dispose(ctx context.Context) error {
	s.mu.Lock()
	if !s.started || s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	s.mu.Unlock()

	var errs []error
	if err := s.poller.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop poller: %w", err))
	}
	if err := s.SaveState(ctx); err != nil {
		errs = append(errs, err)
	}

	s.manager.Dispose()
	s.cache.Close()
	s.audit.Close()

	s.mu.Lock()
	if s.saveCancel != nil {
		s.saveCancel()
	}
	s.mu.Unlock()

	s.logger.Info("sync service stopped")
	return errors.Join(errs...)
}

// Status summarizes the connection for display.
func (s *Service) Status() string {
	return StatusFromStats(s.manager.Stats())
}

// StatusFromStats derives the operator status string.
func StatusFromStats(st connection.Stats) string {
	switch {
	case st.Connected:
		return StatusConnected
	case st.Exhausted:
		return StatusConnectionFailed
	case st.ReconnectAttempts > 0:
		return fmt.Sprintf("reconnecting (%d/%d)", st.ReconnectAttempts, st.MaxReconnectAttempts)
	case st.State == connection.StateConnecting:
		return StatusConnecting
	default:
		return StatusDisconnected
	}
}

// ForceReconnect is the manual recovery action after exhaustion.
func (s *Service) ForceReconnect() {
	s.manager.ForceReconnect()
}

// ConnectionStats returns the connection statistics.
func (s *Service) ConnectionStats() connection.Stats {
	return s.manager.Stats()
}

// Events returns the dispatcher feeding the cache and audit history.
func (s *Service) Events() *dispatch.Dispatcher {
	return s.events
}

// Manager returns the connection manager.
func (s *Service) Manager() *connection.Manager {
	return s.manager
}

// Cache returns the zone cache.
func (s *Service) Cache() *zonecache.Cache {
	return s.cache
}

// Audit returns the audit history.
func (s *Service) Audit() *audit.Ring {
	return s.audit
}

// IsDataStale applies the configured max age to the cache.
func (s *Service) IsDataStale() bool {
	return s.cache.IsDataStale(s.cfg.Cache.MaxAge)
}

// SaveState persists the cache and the audit history.
func (s *Service) SaveState(ctx context.Context) error {
	var errs []error
	if err := s.cache.Save(ctx, s.store); err != nil {
		errs = append(errs, err)
	}
	if err := s.audit.Save(ctx, s.store); err != nil {
		errs = append(errs, err)
	}
	err := errors.Join(errs...)

	s.mu.Lock()
	s.lastSaveErr = err
	s.mu.Unlock()

	return err
}

// LastSaveError returns the result of the most recent save.
func (s *Service) LastSaveError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaveErr
}

func (s *Service) restore(ctx context.Context) {
	if ok, err := s.cache.Load(ctx, s.store); err != nil {
		s.logger.Warn("could not restore zone cache", zap.Error(err))
	} else if !ok {
		s.logger.Info("no persisted zone cache")
	}

	if _, err := s.audit.Load(ctx, s.store); err != nil {
		s.logger.Warn("could not restore audit history", zap.Error(err))
	}
}

func (s *Service) seed(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.API.Timeout)
	defer cancel()

	snap, err := s.source.GetSnapshot(ctx)
	if err != nil {
		return err
	}
	return s.applySnapshot(snap)
}

func (s *Service) applySnapshot(snap *api.Snapshot) error {
	s.cache.SeedZones(snap.Zones, snap.FetchedAt)
	s.cache.SetCategories(snap.Categories)
	s.cache.SetGates(snap.Gates)
	return nil
}

// topics returns the configured gates, or every known gate if none are
// configured.
func (s *Service) topics() []string {
	if len(s.cfg.Feed.Gates) > 0 {
		return s.cfg.Feed.Gates
	}

	gates := s.cache.Gates()
	topics := make([]string, 0, len(gates))
	for _, g := range gates {
		topics = append(topics, g.ID)
	}
	return topics
}

func (s *Service) scheduleSaveLocked() {
	if s.disposed || s.cfg.Cache.SaveInterval <= 0 {
		return
	}
	s.saveTimer = s.clock.AfterFunc(s.cfg.Cache.SaveInterval, s.periodicSave)
}

func (s *Service) periodicSave() {
	s.mu.Lock()
	ctx := s.saveCtx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Store.Timeout)
	defer cancel()

	if err := s.SaveState(ctx); err != nil {
		s.logger.Warn("periodic save failed", zap.Error(err))
	}

	s.mu.Lock()
	s.scheduleSaveLocked()
	s.mu.Unlock()
}

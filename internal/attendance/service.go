package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"attendo/internal/auth"
	"attendo/internal/geo"
	"attendo/internal/logging"
	"attendo/internal/queue"
)

var (
	ErrUnauthenticated     = errors.New("user not authenticated")
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrOutOfRange          = errors.New("not within the allowed location range")
	ErrInvalidType         = errors.New("invalid attendance type")
)

// MarkedEvent is the queue message type published for every accepted record.
const MarkedEvent = "attendance.marked"

const publishTimeout = time.Second

// maxClockSkew is how far ahead of the service clock a fix timestamp may be.
const maxClockSkew = 5 * time.Second

// SessionSource supplies the identity on whose behalf a record is made.
type SessionSource interface {
	CurrentUser() (auth.Identity, bool)
}

// Service validates check-ins against the site fence and answers history queries.
type Service struct {
	ledger       *Ledger
	fence        geo.Fence
	locate       geo.Options
	geocoder     geo.Geocoder
	queue        queue.Queue
	metrics      *Metrics
	logger       *zap.Logger
	loc          *time.Location
	now          func() time.Time
	newID        func() string
	streakWindow int
}

// Option customizes a Service.
type Option func(*Service)

// WithGeocoder sets the reverse geocoder used for record addresses.
func WithGeocoder(g geo.Geocoder) Option { return func(s *Service) { s.geocoder = g } }

// WithQueue publishes a MarkedEvent for each accepted record.
func WithQueue(q queue.Queue) Option { return func(s *Service) { s.queue = q } }

// WithMetrics records mark outcomes.
func WithMetrics(m *Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = logging.OrNop(l) } }

// WithLocation sets the time zone that defines calendar days. A nil loc means time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc == nil {
			loc = time.Local
		}
		s.loc = loc
	}
}

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithIDGenerator overrides record id generation.
func WithIDGenerator(newID func() string) Option { return func(s *Service) { s.newID = newID } }

// WithLocateOptions overrides the location request options.
func WithLocateOptions(o geo.Options) Option { return func(s *Service) { s.locate = o } }

// WithStreakWindow bounds how many days back a streak is searched.
func WithStreakWindow(days int) Option { return func(s *Service) { s.streakWindow = days } }

// NewService creates a service appending to ledger and guarding with fence.
func NewService(ledger *Ledger, fence geo.Fence, opts ...Option) *Service {
	s := &Service{
		ledger:       ledger,
		fence:        fence,
		locate:       geo.DefaultOptions,
		geocoder:     geo.CoordinateGeocoder{},
		logger:       zap.NewNop(),
		loc:          time.Local,
		now:          time.Now,
		newID:        uuid.NewString,
		streakWindow: DefaultStreakWindow,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Mark records a check-in or check-out for the session's identity once its
// position, as reported by locator, is inside the site fence.
func (s *Service) Mark(ctx context.Context, sess SessionSource, locator geo.Locator, typ Type, note string) (Record, error) {
	if !typ.Valid() {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidType, typ)
	}
	if sess == nil {
		s.metrics.observe(typ, "unauthenticated")
		return Record{}, ErrUnauthenticated
	}
	ident, ok := sess.CurrentUser()
	if !ok {
		s.metrics.observe(typ, "unauthenticated")
		return Record{}, ErrUnauthenticated
	}

	fix, err := s.acquire(ctx, locator)
	if err != nil {
		s.metrics.observe(typ, "location_unavailable")
		s.logger.Info("mark rejected: no location", zap.String("identity_id", ident.ID), zap.Error(err))
		return Record{}, err
	}

	inside, distance := s.fence.Contains(fix.Point)
	s.metrics.observeDistance(distance)
	if !inside {
		s.metrics.observe(typ, "out_of_range")
		s.logger.Info("mark rejected: outside fence",
			zap.String("identity_id", ident.ID),
			zap.Float64("distance_km", distance),
			zap.Float64("radius_km", s.fence.RadiusKm))
		return Record{}, fmt.Errorf("%w: %.3f km from site, limit %.3f km", ErrOutOfRange, distance, s.fence.RadiusKm)
	}

	rec := Record{
		ID:        s.newID(),
		UserID:    ident.ID,
		Timestamp: s.now().UTC(),
		Type:      typ,
		Location: &Location{
			Latitude:  fix.Latitude,
			Longitude: fix.Longitude,
			Address:   s.address(ctx, fix.Point),
		},
		Notes: strings.TrimSpace(note),
	}
	if err := s.ledger.Append(ctx, rec); err != nil {
		s.metrics.observe(typ, "error")
		return Record{}, err
	}
	s.metrics.observe(typ, "accepted")
	s.logger.Info("attendance marked",
		zap.String("record_id", rec.ID),
		zap.String("identity_id", ident.ID),
		zap.String("type", string(typ)),
		zap.Float64("distance_km", distance))

	s.publish(ctx, rec)
	return rec, nil
}

// acquire asks locator for a fix within the configured timeout and rejects stale or future fixes.
func (s *Service) acquire(ctx context.Context, locator geo.Locator) (geo.Fix, error) {
	if locator == nil {
		return geo.Fix{}, fmt.Errorf("%w: no location provider", ErrLocationUnavailable)
	}
	lctx := ctx
	if s.locate.Timeout > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, s.locate.Timeout)
		defer cancel()
	}
	fix, err := locator.Locate(lctx, s.locate)
	if err != nil {
		return geo.Fix{}, fmt.Errorf("%w: %w", ErrLocationUnavailable, err)
	}
	if !fix.Valid() {
		return geo.Fix{}, fmt.Errorf("%w: invalid coordinates", ErrLocationUnavailable)
	}
	if !fix.At.IsZero() {
		age := s.now().Sub(fix.At)
		if age < -maxClockSkew {
			return geo.Fix{}, fmt.Errorf("%w: fix is %s in the future", ErrLocationUnavailable, (-age).Round(time.Second))
		}
		if s.locate.MaxAge > 0 && age > s.locate.MaxAge {
			return geo.Fix{}, fmt.Errorf("%w: fix is %s old", ErrLocationUnavailable, age.Round(time.Second))
		}
	}
	return fix, nil
}

// address falls back to formatted coordinates when the geocoder fails.
func (s *Service) address(ctx context.Context, p geo.Point) string {
	if s.geocoder == nil {
		return geo.FormatCoords(p)
	}
	addr, err := s.geocoder.Reverse(ctx, p)
	if err != nil || addr == "" {
		s.logger.Warn("reverse geocode failed, using coordinates", zap.Error(err))
		return geo.FormatCoords(p)
	}
	return addr
}

func (s *Service) publish(ctx context.Context, rec Record) {
	if s.queue == nil {
		return
	}
	body, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("encode marked event", zap.Error(err))
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := s.queue.Publish(pctx, queue.Message{Type: MarkedEvent, Body: body}); err != nil {
		s.logger.Warn("queue publish failed", zap.String("record_id", rec.ID), zap.Error(err))
	}
}

// RecordsFor returns the records visible to ident: all of them for admins, its own otherwise.
func (s *Service) RecordsFor(ctx context.Context, ident auth.Identity) ([]Record, error) {
	all, err := s.ledger.All(ctx)
	if err != nil {
		return nil, err
	}
	if ident.IsAdmin() {
		return all, nil
	}
	var own []Record
	for _, r := range all {
		if r.UserID == ident.ID {
			own = append(own, r)
		}
	}
	return own, nil
}

// TodayRecords returns the visible records made on the current calendar day.
func (s *Service) TodayRecords(ctx context.Context, ident auth.Identity) ([]Record, error) {
	records, err := s.RecordsFor(ctx, ident)
	if err != nil {
		return nil, err
	}
	return OnDay(records, s.now(), s.loc), nil
}

// Stats summarises the records visible to ident.
func (s *Service) Stats(ctx context.Context, ident auth.Identity) (Stats, error) {
	records, err := s.RecordsFor(ctx, ident)
	if err != nil {
		return Stats{}, err
	}
	return ComputeStats(records, s.now(), s.loc, s.streakWindow), nil
}

// Location is the time zone used for calendar days.
func (s *Service) Location() *time.Location { return s.loc }

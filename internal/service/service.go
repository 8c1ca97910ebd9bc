package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/alerting"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/broadcast"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/clock"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/domain"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/history"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/metrics"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/pins"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/quality"
)

const (
	DefaultDevice  = "default"
	DefaultTimeout = 5 * time.Second
)

// Store is the durable per-device record kept outside the process.
type Store interface {
	WriteLatest(ctx context.Context, device string, r domain.Reading) error
	AppendHistory(ctx context.Context, device string, r domain.Reading) error
	ListPins(ctx context.Context, device string) ([]domain.Pin, error)
	CreatePin(ctx context.Context, device string, p domain.Pin) error
	UpdatePin(ctx context.Context, device string, p domain.Pin) error
	DeleteDevice(ctx context.Context, device string) error
}

type Notifier interface {
	Notify(ctx context.Context, n domain.Notification) error
}

// Archiver keeps a copy of a device's recent history before a reset wipes
// it.
type Archiver interface {
	ArchiveHistory(ctx context.Context, device string, readings []domain.Reading) error
}

type Authorizer interface {
	Check(password string) bool
}

// Config wires a Monitor. Store, Notifier and Archiver may be nil, in which
// case the matching downstream calls are skipped.
type Config struct {
	Store         Store
	Notifier      Notifier
	Archiver      Archiver
	Authorizer    Authorizer
	Alerter       *alerting.Alerter
	Hub           *broadcast.Hub
	Clock         clock.Clock
	DefaultDevice string
	Timeout       time.Duration
}

// Monitor owns the in-memory state of every device: recent history, pins
// and alert cooldown. Each device is guarded by its own lock, so devices
// ingest in parallel while readings of one device apply in order.
type Monitor struct {
	store         Store
	notifier      Notifier
	archiver      Archiver
	auth          Authorizer
	alerter       *alerting.Alerter
	hub           *broadcast.Hub
	clock         clock.Clock
	defaultDevice string
	timeout       time.Duration
	logger        zerolog.Logger

	mu     sync.Mutex
	scopes map[string]*scope
	tasks  sync.WaitGroup
}

type scope struct {
	mu       sync.Mutex
	history  *history.Cache
	pins     *pins.Index
	throttle *alerting.Throttle
	hydrated bool
	removed  bool
	pending  sync.WaitGroup
}

func New(cfg Config) *Monitor {
	m := &Monitor{
		store:         cfg.Store,
		notifier:      cfg.Notifier,
		archiver:      cfg.Archiver,
		auth:          cfg.Authorizer,
		alerter:       cfg.Alerter,
		hub:           cfg.Hub,
		clock:         cfg.Clock,
		defaultDevice: strings.TrimSpace(cfg.DefaultDevice),
		timeout:       cfg.Timeout,
		logger:        log.With().Str("component", "monitor").Logger(),
		scopes:        make(map[string]*scope),
	}
	if m.auth == nil {
		m.auth = denyAll{}
	}
	if m.alerter == nil {
		m.alerter = alerting.NewAlerter("", "")
	}
	if m.hub == nil {
		m.hub = broadcast.NewHub()
	}
	if m.clock == nil {
		m.clock = clock.New()
	}
	if m.defaultDevice == "" {
		m.defaultDevice = DefaultDevice
	}
	if m.timeout <= 0 {
		m.timeout = DefaultTimeout
	}
	return m
}

func (m *Monitor) Hub() *broadcast.Hub { return m.hub }

// Device normalizes a device identifier, falling back to the default scope.
func (m *Monitor) Device(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return m.defaultDevice
	}
	return name
}

// Ingest classifies a sample and applies it to the device's history, pins,
// alert throttle and subscribers. Durable writes and the alert are sent in
// the background; their failures are logged and never returned. The only
// error is domain.ErrInvalidReading, in which case nothing has changed.
func (m *Monitor) Ingest(ctx context.Context, device string, s quality.Sample) (domain.Reading, error) {
	r, err := quality.Classify(s, m.clock.Now())
	if err != nil {
		metrics.Rejected.Inc()
		return domain.Reading{}, err
	}
	device = m.Device(device)

	sc := m.acquire(device)
	defer sc.mu.Unlock()

	m.hydrate(ctx, device, sc)

	sc.history.Append(r)

	if _, _, ok := r.Coordinates(); ok {
		pin, created, err := sc.pins.Update(r, r.CapturedAt)
		if err == nil {
			m.persistPin(sc, device, pin, created)
		}
	}

	if r.Unsafe() {
		if sc.throttle.Allow(r.CapturedAt) {
			m.sendAlert(sc, device, r)
		} else {
			metrics.Alerts.WithLabelValues("throttled").Inc()
		}
	}

	if msg, err := broadcast.ReadingMessage(device, r); err != nil {
		m.logger.Error().Err(err).Str("device", device).Msg("failed to encode reading message")
	} else {
		m.hub.Publish(device, msg)
	}

	if m.store != nil {
		m.spawn(sc, device, "write_latest", func(ctx context.Context) error {
			return m.store.WriteLatest(ctx, device, r)
		})
		m.spawn(sc, device, "append_history", func(ctx context.Context) error {
			return m.store.AppendHistory(ctx, device, r)
		})
	}

	metrics.Readings.WithLabelValues(string(r.Status)).Inc()
	return r, nil
}

func (m *Monitor) persistPin(sc *scope, device string, pin domain.Pin, created bool) {
	if created {
		metrics.PinsCreated.Inc()
	}
	if m.store == nil {
		return
	}
	if created {
		m.spawn(sc, device, "create_pin", func(ctx context.Context) error {
			return m.store.CreatePin(ctx, device, pin)
		})
		return
	}
	m.spawn(sc, device, "update_pin", func(ctx context.Context) error {
		return m.store.UpdatePin(ctx, device, pin)
	})
}

func (m *Monitor) sendAlert(sc *scope, device string, r domain.Reading) {
	if m.notifier == nil {
		return
	}
	n := m.alerter.Build(device, r)
	m.spawn(sc, device, "notify", func(ctx context.Context) error {
		if err := m.notifier.Notify(ctx, n); err != nil {
			metrics.Alerts.WithLabelValues("failed").Inc()
			return err
		}
		metrics.Alerts.WithLabelValues("sent").Inc()
		return nil
	})
}

// spawn runs fn in the background under the downstream timeout. Callers
// hold sc.mu, which lets Reset wait for a device's writes to settle.
func (m *Monitor) spawn(sc *scope, device, op string, fn func(ctx context.Context) error) {
	m.tasks.Add(1)
	sc.pending.Add(1)
	go func() {
		defer m.tasks.Done()
		defer sc.pending.Done()

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			metrics.DownstreamFailures.WithLabelValues(op).Inc()
			m.logger.Error().
				Err(fmt.Errorf("%w: %w", domain.ErrDownstreamWrite, err)).
				Str("device", device).
				Str("op", op).
				Msg("downstream call failed")
		}
	}()
}

// Snapshot returns the most recent reading of a device.
func (m *Monitor) Snapshot(device string) (domain.Reading, bool) {
	sc, ok := m.lookup(m.Device(device))
	if !ok {
		return domain.Reading{}, false
	}
	return sc.history.Latest()
}

// History returns the cached readings of a device, oldest first.
func (m *Monitor) History(device string) []domain.Reading {
	sc, ok := m.lookup(m.Device(device))
	if !ok {
		return []domain.Reading{}
	}
	return sc.history.Dump()
}

// Pins returns the pins of a device. A device without local state is read
// straight from the store and gets no scope of its own.
func (m *Monitor) Pins(ctx context.Context, device string) []domain.Pin {
	device = m.Device(device)

	sc, ok := m.lookup(device)
	if !ok {
		return m.storedPins(ctx, device)
	}

	sc.mu.Lock()
	m.hydrate(ctx, device, sc)
	sc.mu.Unlock()

	return sc.pins.Pins()
}

func (m *Monitor) storedPins(ctx context.Context, device string) []domain.Pin {
	idx := pins.NewIndex()
	if m.store == nil {
		return idx.Pins()
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	stored, err := m.store.ListPins(ctx, device)
	if err != nil {
		metrics.DownstreamFailures.WithLabelValues("list_pins").Inc()
		m.logger.Warn().Err(err).Str("device", device).Msg("could not load stored pins")
		return idx.Pins()
	}
	idx.Load(stored)
	return idx.Pins()
}

// Subscribe sends the device's history to sub and registers it for later
// readings and resets. Both happen under the device lock so no reading is
// missed or seen twice. The returned func unregisters sub and drops the
// device's scope if nothing is left in it.
func (m *Monitor) Subscribe(device string, sub broadcast.Subscriber) (func(), error) {
	device = m.Device(device)

	sc := m.acquire(device)
	defer sc.mu.Unlock()

	msg, err := broadcast.HistoryMessage(device, sc.history.Dump())
	if err != nil {
		m.release(device, sc)
		return nil, fmt.Errorf("failed to encode history: %w", err)
	}
	m.hub.Join(device, sub, msg)

	return func() {
		m.hub.Leave(device, sub)
		sc.mu.Lock()
		m.release(device, sc)
		sc.mu.Unlock()
	}, nil
}

// Reset wipes a device. The durable record goes first and local state is
// only cleared once that delete succeeded; subscribers are told last.
func (m *Monitor) Reset(ctx context.Context, device, password string) error {
	if !m.auth.Check(password) {
		return domain.ErrUnauthorized
	}
	device = m.Device(device)

	sc := m.acquire(device)
	defer sc.mu.Unlock()

	// writes still in flight would recreate what the delete removes
	sc.pending.Wait()

	if m.archiver != nil {
		if dump := sc.history.Dump(); len(dump) > 0 {
			actx, cancel := context.WithTimeout(ctx, m.timeout)
			err := m.archiver.ArchiveHistory(actx, device, dump)
			cancel()
			if err != nil {
				metrics.DownstreamFailures.WithLabelValues("archive_history").Inc()
				m.logger.Warn().Err(err).Str("device", device).Msg("history archive failed")
			}
		}
	}

	if m.store != nil {
		dctx, cancel := context.WithTimeout(ctx, m.timeout)
		err := m.store.DeleteDevice(dctx, device)
		cancel()
		if err != nil {
			metrics.DownstreamFailures.WithLabelValues("delete_device").Inc()
			return fmt.Errorf("%w: delete device %s: %w", domain.ErrDownstreamWrite, device, err)
		}
	}

	sc.history.Clear()
	sc.pins.Clear()
	sc.throttle.Reset()

	msg, err := broadcast.ResetMessage(device)
	if err != nil {
		return fmt.Errorf("failed to encode reset: %w", err)
	}
	n := m.hub.Publish(device, msg)

	m.logger.Info().Str("device", device).Int("notified", n).Msg("device reset")
	return nil
}

// Wait blocks until every background downstream call has finished. Call it
// after ingestion has stopped.
func (m *Monitor) Wait() {
	m.tasks.Wait()
}

// Devices lists the devices that currently hold state in memory.
func (m *Monitor) Devices() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.scopes))
	for device := range m.scopes {
		out = append(out, device)
	}
	slices.Sort(out)
	return out
}

// acquire returns the device's scope with sc.mu held, creating the scope if
// needed. A scope dropped by release between lookup and lock is skipped.
func (m *Monitor) acquire(device string) *scope {
	for {
		sc := m.scope(device)
		sc.mu.Lock()
		if !sc.removed {
			return sc
		}
		sc.mu.Unlock()
	}
}

func (m *Monitor) scope(device string) *scope {
	m.mu.Lock()
	defer m.mu.Unlock()

	sc, ok := m.scopes[device]
	if !ok {
		sc = &scope{
			history:  history.NewCache(history.Capacity),
			pins:     pins.NewIndex(),
			throttle: alerting.NewThrottle(alerting.Cooldown),
		}
		m.scopes[device] = sc
	}
	return sc
}

func (m *Monitor) lookup(device string) (*scope, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sc, ok := m.scopes[device]
	return sc, ok
}

// release drops an idle scope: no readings, no pins, no subscribers. Callers
// hold sc.mu.
func (m *Monitor) release(device string, sc *scope) {
	if sc.removed || sc.history.Len() > 0 || sc.pins.Len() > 0 || m.hub.Count(device) > 0 {
		return
	}
	sc.removed = true

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scopes[device] == sc {
		delete(m.scopes, device)
	}
}

// hydrate loads stored pins into a scope. Callers hold sc.mu. A failed load
// is logged and retried on the next use of the scope; pins created in the
// meantime are kept alongside the loaded ones.
func (m *Monitor) hydrate(ctx context.Context, device string, sc *scope) {
	if sc.hydrated || m.store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	stored, err := m.store.ListPins(ctx, device)
	if err != nil {
		metrics.DownstreamFailures.WithLabelValues("list_pins").Inc()
		m.logger.Warn().Err(err).Str("device", device).Msg("could not load stored pins")
		return
	}
	sc.hydrated = true
	n := sc.pins.Load(stored)
	m.logger.Debug().Str("device", device).Int("pins", n).Msg("pins loaded")
}

type denyAll struct{}

func (denyAll) Check(string) bool { return false }

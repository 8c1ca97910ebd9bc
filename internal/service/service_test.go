package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/auth"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/broadcast"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/clock"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/domain"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/mocks"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/quality"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/repository"
	"github.com/ANIKETSHETTY47/water-quality-monitor/internal/service"
)

const password = "hunter2"

var start = time.Date(2024, 7, 1, 6, 0, 0, 0, time.UTC)

var (
	safe   = quality.Sample{PH: "7.0", TDS: "100", Temp: "20", Turbidity: "1"}
	unsafe = quality.Sample{PH: "9.0", TDS: "100", Temp: "20", Turbidity: "1"}
)

func located(s quality.Sample, lat, lng string) quality.Sample {
	s.Lat, s.Lng = lat, lng
	return s
}

type subscriber struct {
	mu   sync.Mutex
	msgs []broadcast.Message
}

func (s *subscriber) Deliver(raw []byte) bool {
	var m broadcast.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, m)
	return true
}

func (s *subscriber) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = m.Type
	}
	return out
}

func (s *subscriber) first() broadcast.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msgs[0]
}

type fixture struct {
	mon      *service.Monitor
	store    *repository.Memory
	notifier *mocks.Notifier
	clock    clock.Mock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:    repository.NewMemory(),
		notifier: &mocks.Notifier{},
		clock:    clock.NewMock(start),
	}
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)
	f.mon = service.New(service.Config{
		Store:      f.store,
		Notifier:   f.notifier,
		Authorizer: auth.NewVerifier(password, ""),
		Clock:      f.clock,
	})
	return f
}

func TestIngestSafeReading(t *testing.T) {
	f := newFixture(t)

	r, err := f.mon.Ingest(context.Background(), "well-1", safe)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSafe, r.Status)
	assert.Equal(t, start, r.CapturedAt)

	got, ok := f.mon.Snapshot("well-1")
	require.True(t, ok)
	assert.Equal(t, r, got)

	f.mon.Wait()
	stored, ok := f.store.Latest("well-1")
	require.True(t, ok)
	assert.Equal(t, r, stored)
	assert.Len(t, f.store.History("well-1"), 1)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestIngestDefaultsDevice(t *testing.T) {
	f := newFixture(t)

	_, err := f.mon.Ingest(context.Background(), "  ", safe)
	require.NoError(t, err)

	_, ok := f.mon.Snapshot(service.DefaultDevice)
	assert.True(t, ok)
	_, ok = f.mon.Snapshot("")
	assert.True(t, ok)
}

func TestIngestInvalidReadingTouchesNothing(t *testing.T) {
	f := newFixture(t)
	sub := &subscriber{}
	_, err := f.mon.Subscribe("well-1", sub)
	require.NoError(t, err)

	missingTDS := located(quality.Sample{PH: "7", Temp: "20", Turbidity: "1"}, "1", "1")
	_, err = f.mon.Ingest(context.Background(), "well-1", missingTDS)
	assert.ErrorIs(t, err, domain.ErrInvalidReading)

	f.mon.Wait()
	_, ok := f.mon.Snapshot("well-1")
	assert.False(t, ok)
	assert.Empty(t, f.mon.History("well-1"))
	assert.Empty(t, f.mon.Pins(context.Background(), "well-1"))
	assert.Equal(t, []string{"history"}, sub.types())
	assert.Empty(t, f.store.History("well-1"))
}

func TestAlertDebounce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mon.Ingest(ctx, "well-1", unsafe)
	require.NoError(t, err)

	f.clock.Add(10 * time.Second)
	_, err = f.mon.Ingest(ctx, "well-1", unsafe)
	require.NoError(t, err)

	f.mon.Wait()
	f.notifier.AssertNumberOfCalls(t, "Notify", 1)

	f.clock.Set(start.Add(130 * time.Second))
	_, err = f.mon.Ingest(ctx, "well-1", unsafe)
	require.NoError(t, err)

	f.mon.Wait()
	f.notifier.AssertNumberOfCalls(t, "Notify", 2)
}

func TestAlertCooldownIgnoresDeliveryFailure(t *testing.T) {
	notifier := &mocks.Notifier{}
	notifier.On("Notify", mock.Anything, mock.Anything).Return(errors.New("sns unavailable"))

	cl := clock.NewMock(start)
	mon := service.New(service.Config{Notifier: notifier, Clock: cl})
	ctx := context.Background()

	_, err := mon.Ingest(ctx, "well-1", unsafe)
	require.NoError(t, err, "downstream failure is not surfaced")

	cl.Add(30 * time.Second)
	_, err = mon.Ingest(ctx, "well-1", unsafe)
	require.NoError(t, err)

	mon.Wait()
	notifier.AssertNumberOfCalls(t, "Notify", 1)
}

func TestSafeReadingsDoNotTouchCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mon.Ingest(ctx, "well-1", unsafe)
	require.NoError(t, err)

	f.clock.Add(100 * time.Second)
	_, err = f.mon.Ingest(ctx, "well-1", safe)
	require.NoError(t, err)

	f.clock.Add(25 * time.Second)
	_, err = f.mon.Ingest(ctx, "well-1", unsafe)
	require.NoError(t, err)

	f.mon.Wait()
	f.notifier.AssertNumberOfCalls(t, "Notify", 2)
}

func TestAlertNotificationContent(t *testing.T) {
	f := newFixture(t)

	_, err := f.mon.Ingest(context.Background(), "well-9", unsafe)
	require.NoError(t, err)
	f.mon.Wait()

	require.Len(t, f.notifier.Calls, 1)
	n := f.notifier.Calls[0].Arguments.Get(1).(domain.Notification)
	assert.Equal(t, "Unsafe water detected on well-9", n.Title)
	assert.Contains(t, n.Tags, "ph")
}

func TestCooldownIsPerDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mon.Ingest(ctx, "well-1", unsafe)
	require.NoError(t, err)
	_, err = f.mon.Ingest(ctx, "well-2", unsafe)
	require.NoError(t, err)

	f.mon.Wait()
	f.notifier.AssertNumberOfCalls(t, "Notify", 2)
}

func TestPinClusteringIsPersisted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	steps := []struct {
		lat, lng string
		pins     int
	}{
		{"1.0000", "1.0000", 1},
		{"1.0000", "1.0000", 1},
		{"1.00027", "1.0000", 2},
		{"1.00036", "1.0000", 2},
	}
	for i, step := range steps {
		f.clock.Add(time.Second)
		_, err := f.mon.Ingest(ctx, "well-1", located(safe, step.lat, step.lng))
		require.NoError(t, err)
		assert.Len(t, f.mon.Pins(ctx, "well-1"), step.pins, "step %d", i)
	}

	f.mon.Wait()
	stored, err := f.store.ListPins(ctx, "well-1")
	require.NoError(t, err)
	require.Len(t, stored, 2)

	byID := make(map[string]domain.Pin, len(stored))
	for _, p := range stored {
		byID[p.ID] = p
	}
	local := f.mon.Pins(ctx, "well-1")
	require.Contains(t, byID, local[0].ID)
	require.Contains(t, byID, local[1].ID)
	assert.Equal(t, start.Add(2*time.Second), byID[local[0].ID].UpdatedAt)
	assert.Equal(t, start.Add(4*time.Second), byID[local[1].ID].UpdatedAt)
}

func TestPinsAreHydratedFromStore(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	require.NoError(t, store.CreatePin(ctx, "well-1", domain.Pin{
		ID: "existing", Lat: 1, Lng: 1, CreatedAt: start, UpdatedAt: start,
	}))

	mon := service.New(service.Config{Store: store, Clock: clock.NewMock(start.Add(time.Hour))})

	_, err := mon.Ingest(ctx, "well-1", located(safe, "1.00001", "1"))
	require.NoError(t, err)

	pins := mon.Pins(ctx, "well-1")
	require.Len(t, pins, 1)
	assert.Equal(t, "existing", pins[0].ID)
	assert.Equal(t, start.Add(time.Hour), pins[0].UpdatedAt)
	mon.Wait()
}

func TestHydrationFailureStartsEmpty(t *testing.T) {
	store := &mocks.Store{}
	store.On("ListPins", mock.Anything, "well-1").Return(nil, errors.New("timeout"))
	store.On("WriteLatest", mock.Anything, "well-1", mock.Anything).Return(nil)
	store.On("AppendHistory", mock.Anything, "well-1", mock.Anything).Return(nil)
	store.On("CreatePin", mock.Anything, "well-1", mock.Anything).Return(nil)

	mon := service.New(service.Config{Store: store})
	_, err := mon.Ingest(context.Background(), "well-1", located(safe, "1", "1"))
	require.NoError(t, err)
	mon.Wait()

	assert.Len(t, mon.Pins(context.Background(), "well-1"), 1)
	store.AssertNumberOfCalls(t, "ListPins", 2)
}

func TestHydrationRetriesAfterStoreFailure(t *testing.T) {
	existing := domain.Pin{ID: "existing", Lat: 1, Lng: 1, CreatedAt: start, UpdatedAt: start}

	store := &mocks.Store{}
	store.On("ListPins", mock.Anything, "well-1").Return(nil, errors.New("timeout")).Once()
	store.On("ListPins", mock.Anything, "well-1").Return([]domain.Pin{existing}, nil)
	store.On("WriteLatest", mock.Anything, "well-1", mock.Anything).Return(nil)
	store.On("AppendHistory", mock.Anything, "well-1", mock.Anything).Return(nil)
	store.On("CreatePin", mock.Anything, "well-1", mock.Anything).Return(nil)
	store.On("UpdatePin", mock.Anything, "well-1", mock.Anything).Return(nil)

	mon := service.New(service.Config{Store: store, Clock: clock.NewMock(start.Add(time.Hour))})
	ctx := context.Background()

	_, err := mon.Ingest(ctx, "well-1", located(safe, "5", "5"))
	require.NoError(t, err)
	_, err = mon.Ingest(ctx, "well-1", located(safe, "1", "1"))
	require.NoError(t, err)
	mon.Wait()

	local := mon.Pins(ctx, "well-1")
	require.Len(t, local, 2)
	ids := []string{local[0].ID, local[1].ID}
	assert.Contains(t, ids, "existing")

	store.AssertNumberOfCalls(t, "ListPins", 2)
	store.AssertNumberOfCalls(t, "CreatePin", 1)
	store.AssertCalled(t, "UpdatePin", mock.Anything, "well-1", mock.MatchedBy(func(p domain.Pin) bool {
		return p.ID == "existing"
	}))
}

func TestPinsOfUnknownDeviceReadsStore(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	require.NoError(t, store.CreatePin(ctx, "well-9", domain.Pin{
		ID: "stored", Lat: 2, Lng: 2, CreatedAt: start, UpdatedAt: start,
	}))
	mon := service.New(service.Config{Store: store})

	pins := mon.Pins(ctx, "well-9")
	require.Len(t, pins, 1)
	assert.Equal(t, "stored", pins[0].ID)

	assert.Empty(t, mon.Pins(ctx, "nobody"))
	assert.Empty(t, mon.Devices())
}

func TestIdleScopeIsDroppedOnLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, second := &subscriber{}, &subscriber{}
	leaveFirst, err := f.mon.Subscribe("visitor", first)
	require.NoError(t, err)
	leaveSecond, err := f.mon.Subscribe("visitor", second)
	require.NoError(t, err)
	assert.Equal(t, []string{"visitor"}, f.mon.Devices())

	leaveFirst()
	assert.Equal(t, []string{"visitor"}, f.mon.Devices(), "still watched")
	leaveSecond()
	assert.Empty(t, f.mon.Devices())
	assert.Equal(t, 0, f.mon.Hub().Count("visitor"))

	_, err = f.mon.Ingest(ctx, "well-1", safe)
	require.NoError(t, err)
	leave, err := f.mon.Subscribe("well-1", &subscriber{})
	require.NoError(t, err)
	leave()
	assert.Equal(t, []string{"well-1"}, f.mon.Devices(), "devices with readings are kept")

	// a dropped device starts over on its next reading
	leave, err = f.mon.Subscribe("visitor", &subscriber{})
	require.NoError(t, err)
	leave()
	_, err = f.mon.Ingest(ctx, "visitor", safe)
	require.NoError(t, err)
	assert.Len(t, f.mon.History("visitor"), 1)
	f.mon.Wait()
}

func TestSubscribeReceivesCatchUpThenUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mon.Ingest(ctx, "well-1", safe)
	require.NoError(t, err)

	sub := &subscriber{}
	leave, err := f.mon.Subscribe("well-1", sub)
	require.NoError(t, err)

	_, err = f.mon.Ingest(ctx, "well-1", unsafe)
	require.NoError(t, err)
	_, err = f.mon.Ingest(ctx, "well-2", safe)
	require.NoError(t, err)

	assert.Equal(t, []string{"history", "reading"}, sub.types())
	assert.Len(t, sub.first().Payload, 1)

	leave()
	_, err = f.mon.Ingest(ctx, "well-1", safe)
	require.NoError(t, err)
	assert.Len(t, sub.types(), 2)
	f.mon.Wait()
}

func TestReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.mon.Ingest(ctx, "well-1", located(unsafe, "1", "1"))
		require.NoError(t, err)
	}
	_, err := f.mon.Ingest(ctx, "well-2", safe)
	require.NoError(t, err)

	connected := &subscriber{}
	_, err = f.mon.Subscribe("well-1", connected)
	require.NoError(t, err)

	require.NoError(t, f.mon.Reset(ctx, "well-1", password))

	_, ok := f.mon.Snapshot("well-1")
	assert.False(t, ok)
	assert.Empty(t, f.mon.Pins(ctx, "well-1"))
	assert.Equal(t, []string{"history", "reset"}, connected.types())

	late := &subscriber{}
	_, err = f.mon.Subscribe("well-1", late)
	require.NoError(t, err)
	assert.Equal(t, []string{"history"}, late.types())
	assert.Empty(t, late.first().Payload)

	_, stored := f.store.Latest("well-1")
	assert.False(t, stored)
	assert.Empty(t, f.store.History("well-1"))

	_, ok = f.mon.Snapshot("well-2")
	assert.True(t, ok, "other devices are untouched")

	// the cooldown was cleared with the rest of the device state
	_, err = f.mon.Ingest(ctx, "well-1", unsafe)
	require.NoError(t, err)
	f.mon.Wait()
	f.notifier.AssertNumberOfCalls(t, "Notify", 2)
}

func TestResetWrongPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.mon.Ingest(ctx, "well-1", safe)
	require.NoError(t, err)
	sub := &subscriber{}
	_, err = f.mon.Subscribe("well-1", sub)
	require.NoError(t, err)

	err = f.mon.Reset(ctx, "well-1", "guess")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, ok := f.mon.Snapshot("well-1")
	assert.True(t, ok)
	assert.Equal(t, []string{"history"}, sub.types())

	f.mon.Wait()
	_, ok = f.store.Latest("well-1")
	assert.True(t, ok)
}

func TestResetKeepsLocalStateWhenDeleteFails(t *testing.T) {
	store := &mocks.Store{}
	store.On("ListPins", mock.Anything, "well-1").Return([]domain.Pin(nil), nil)
	store.On("WriteLatest", mock.Anything, "well-1", mock.Anything).Return(nil)
	store.On("AppendHistory", mock.Anything, "well-1", mock.Anything).Return(nil)
	store.On("DeleteDevice", mock.Anything, "well-1").Return(errors.New("connection refused"))

	mon := service.New(service.Config{Store: store, Authorizer: auth.NewVerifier(password, "")})
	ctx := context.Background()

	_, err := mon.Ingest(ctx, "well-1", safe)
	require.NoError(t, err)
	sub := &subscriber{}
	_, err = mon.Subscribe("well-1", sub)
	require.NoError(t, err)

	err = mon.Reset(ctx, "well-1", password)
	assert.ErrorIs(t, err, domain.ErrDownstreamWrite)

	_, ok := mon.Snapshot("well-1")
	assert.True(t, ok)
	assert.Equal(t, []string{"history"}, sub.types())
	store.AssertCalled(t, "DeleteDevice", mock.Anything, "well-1")
}

func TestResetArchivesHistoryFirst(t *testing.T) {
	archiver := &mocks.Archiver{}
	archiver.On("ArchiveHistory", mock.Anything, "well-1", mock.Anything).Return(errors.New("bucket missing"))

	mon := service.New(service.Config{
		Archiver:   archiver,
		Authorizer: auth.NewVerifier(password, ""),
	})
	ctx := context.Background()

	_, err := mon.Ingest(ctx, "well-1", safe)
	require.NoError(t, err)

	require.NoError(t, mon.Reset(ctx, "well-1", password), "archive failures do not block reset")

	archived := archiver.Calls[0].Arguments.Get(2).([]domain.Reading)
	assert.Len(t, archived, 1)
	_, ok := mon.Snapshot("well-1")
	assert.False(t, ok)
}

func TestConcurrentIngestAcrossDevices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, device := range []string{"a", "b", "c"} {
		for i := 0; i < 60; i++ {
			wg.Add(1)
			go func(device string) {
				defer wg.Done()
				_, err := f.mon.Ingest(ctx, device, located(safe, "10", "10"))
				assert.NoError(t, err)
			}(device)
		}
	}
	wg.Wait()
	f.mon.Wait()

	for _, device := range []string{"a", "b", "c"} {
		assert.Len(t, f.mon.History(device), 50)
		assert.Len(t, f.mon.Pins(ctx, device), 1)
		assert.Len(t, f.store.History(device), 60)
	}
}

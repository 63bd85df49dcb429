package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/homelink-io/homelink-core/internal/device"
	"github.com/homelink-io/homelink-core/internal/infrastructure/config"
	"github.com/homelink-io/homelink-core/internal/infrastructure/logging"
)

// mockStore is an in-memory device.Repository for presence tests.
type mockStore struct {
	mu      sync.Mutex
	devices map[string]*device.Device
	saves   int
}

func newMockStore(devices ...*device.Device) *mockStore {
	s := &mockStore{devices: make(map[string]*device.Device)}
	for _, d := range devices {
		s.devices[d.ID] = d
	}
	return s
}

func (s *mockStore) GetByID(_ context.Context, id string) (*device.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d.Clone(), nil
}

func (s *mockStore) FindOne(_ context.Context, filter device.Filter) (*device.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.devices {
		if filter.ID != "" && d.ID != filter.ID {
			continue
		}
		return d.Clone(), nil
	}
	return nil, device.ErrDeviceNotFound
}

func (s *mockStore) List(_ context.Context) ([]device.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]device.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, *d.Clone())
	}
	return out, nil
}

func (s *mockStore) ListByRoom(_ context.Context, roomID string) ([]device.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []device.Device
	for _, d := range s.devices {
		if d.RoomID == roomID {
			out = append(out, *d.Clone())
		}
	}
	return out, nil
}

func (s *mockStore) Save(_ context.Context, d *device.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[d.ID]; !ok {
		return device.ErrDeviceNotFound
	}
	s.devices[d.ID] = d.Clone()
	s.saves++
	return nil
}

func (s *mockStore) SaveMany(_ context.Context, devices []*device.Device) error {
	for _, d := range devices {
		if err := s.Save(context.Background(), d); err != nil {
			return err
		}
	}
	return nil
}

func (s *mockStore) get(id string) *device.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices[id]
}

// mockPublisher records published snapshots.
type mockPublisher struct {
	mu        sync.Mutex
	snapshots []*device.Device
}

func (p *mockPublisher) PublishDeviceStatus(d *device.Device) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, d.Clone())
	return nil
}

func (p *mockPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snapshots)
}

func testConfig() config.HeartbeatConfig {
	return config.HeartbeatConfig{
		SweepInterval:    30,
		OfflineThreshold: 60,
		SweepConcurrency: 4,
	}
}

func testDevice(id, roomID string) *device.Device {
	return &device.Device{
		ID:          id,
		RoomID:      roomID,
		Name:        "Test Device",
		IsOnline:    true,
		IsConnected: true,
	}
}

func TestTrackHeartbeatUntrack(t *testing.T) {
	r := NewRegistry(newMockStore(), &mockPublisher{}, testConfig(), logging.Default())
	now := time.Now()

	r.Track("light-1", "living-room", now)
	if !r.Tracked("light-1") {
		t.Fatal("device not tracked after Track")
	}
	if r.Count() != 1 {
		t.Fatalf("expected 1 tracked device, got %d", r.Count())
	}

	later := now.Add(10 * time.Second)
	r.Heartbeat("light-1", "living-room", later)
	seen, ok := r.LastSeen("light-1")
	if !ok || !seen.Equal(later) {
		t.Fatalf("last-seen not refreshed: got %v ok=%v", seen, ok)
	}

	r.Untrack("light-1")
	if r.Tracked("light-1") {
		t.Fatal("device still tracked after Untrack")
	}
	// Untracking an unknown device is a no-op.
	r.Untrack("light-1")
}

func TestHeartbeatTracksUnknownDevice(t *testing.T) {
	r := NewRegistry(newMockStore(), &mockPublisher{}, testConfig(), logging.Default())

	r.Heartbeat("fan-1", "kitchen", time.Now())
	if !r.Tracked("fan-1") {
		t.Fatal("heartbeat did not track an unknown device")
	}
}

func TestSweepEvictsSilentDevice(t *testing.T) {
	store := newMockStore(testDevice("light-1", "living-room"))
	pub := &mockPublisher{}
	r := NewRegistry(store, pub, testConfig(), logging.Default())

	start := time.Now()
	r.Track("light-1", "living-room", start)

	evicted := r.Sweep(context.Background(), start.Add(90*time.Second))
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if r.Tracked("light-1") {
		t.Error("evicted device still tracked")
	}

	d := store.get("light-1")
	if d.IsOnline || d.IsConnected {
		t.Errorf("device not marked offline: online=%v connected=%v", d.IsOnline, d.IsConnected)
	}
	if d.LastSeenAt == nil || !d.LastSeenAt.Equal(start) {
		t.Errorf("last-seen not stamped from tracking record: %v", d.LastSeenAt)
	}

	if pub.count() != 1 {
		t.Fatalf("expected exactly one offline snapshot, got %d", pub.count())
	}
	if pub.snapshots[0].IsOnline {
		t.Error("offline snapshot reports device online")
	}
}

func TestSweepSparesRecentDevice(t *testing.T) {
	store := newMockStore(testDevice("light-1", "living-room"))
	pub := &mockPublisher{}
	r := NewRegistry(store, pub, testConfig(), logging.Default())

	start := time.Now()
	r.Track("light-1", "living-room", start)

	evicted := r.Sweep(context.Background(), start.Add(30*time.Second))
	if evicted != 0 {
		t.Fatalf("expected no evictions, got %d", evicted)
	}
	if !r.Tracked("light-1") {
		t.Error("recent device was untracked")
	}
	if pub.count() != 0 {
		t.Errorf("unexpected snapshot published: %d", pub.count())
	}
}

func TestSweepDropsDeviceMissingFromStore(t *testing.T) {
	store := newMockStore()
	pub := &mockPublisher{}
	r := NewRegistry(store, pub, testConfig(), logging.Default())

	start := time.Now()
	r.Track("ghost-1", "attic", start)

	evicted := r.Sweep(context.Background(), start.Add(2*time.Minute))
	if evicted != 1 {
		t.Fatalf("expected ghost eviction to count, got %d", evicted)
	}
	if r.Tracked("ghost-1") {
		t.Error("ghost device still tracked")
	}
	if pub.count() != 0 {
		t.Error("snapshot published for device missing from store")
	}
}

func TestSweepEvictsOnlyExpired(t *testing.T) {
	store := newMockStore(
		testDevice("light-1", "living-room"),
		testDevice("fan-1", "kitchen"),
		testDevice("sensor-1", "hall"),
	)
	pub := &mockPublisher{}
	r := NewRegistry(store, pub, testConfig(), logging.Default())

	start := time.Now()
	r.Track("light-1", "living-room", start)
	r.Track("fan-1", "kitchen", start.Add(50*time.Second))
	r.Track("sensor-1", "hall", start.Add(70*time.Second))

	evicted := r.Sweep(context.Background(), start.Add(100*time.Second))
	if evicted != 1 {
		t.Fatalf("expected 1 eviction, got %d", evicted)
	}
	if r.Tracked("light-1") {
		t.Error("expired device still tracked")
	}
	if !r.Tracked("fan-1") || !r.Tracked("sensor-1") {
		t.Error("live devices were evicted")
	}
}

func TestSweepSparesDeviceAtThreshold(t *testing.T) {
	store := newMockStore(testDevice("light-1", "living-room"))
	pub := &mockPublisher{}
	r := NewRegistry(store, pub, testConfig(), logging.Default())

	start := time.Now()
	r.Track("light-1", "living-room", start)

	// Silence exactly equal to the threshold does not exceed it.
	evicted := r.Sweep(context.Background(), start.Add(60*time.Second))
	if evicted != 0 {
		t.Fatalf("expected 0 evictions at the threshold, got %d", evicted)
	}
	if !r.Tracked("light-1") {
		t.Error("device at the threshold was evicted")
	}

	evicted = r.Sweep(context.Background(), start.Add(61*time.Second))
	if evicted != 1 {
		t.Fatalf("expected 1 eviction past the threshold, got %d", evicted)
	}
}

func TestHeartbeatAfterEvictionRetracks(t *testing.T) {
	store := newMockStore(testDevice("light-1", "living-room"))
	r := NewRegistry(store, &mockPublisher{}, testConfig(), logging.Default())

	start := time.Now()
	r.Track("light-1", "living-room", start)
	r.Sweep(context.Background(), start.Add(2*time.Minute))
	if r.Tracked("light-1") {
		t.Fatal("device should be evicted")
	}

	r.Heartbeat("light-1", "living-room", start.Add(3*time.Minute))
	if !r.Tracked("light-1") {
		t.Fatal("heartbeat after eviction did not re-track device")
	}
}

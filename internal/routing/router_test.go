package routing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/homelink-io/homelink-core/internal/command"
	"github.com/homelink-io/homelink-core/internal/device"
	"github.com/homelink-io/homelink-core/internal/infrastructure/logging"
)

// memStore is an in-memory device.Repository for router tests.
type memStore struct {
	mu      sync.Mutex
	devices map[string]*device.Device
}

func newMemStore(devices ...*device.Device) *memStore {
	s := &memStore{devices: make(map[string]*device.Device)}
	for _, d := range devices {
		s.devices[d.ID] = d
	}
	return s
}

func (s *memStore) GetByID(_ context.Context, id string) (*device.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d.Clone(), nil
}

func (s *memStore) FindOne(_ context.Context, filter device.Filter) (*device.Device, error) {
	return s.GetByID(context.Background(), filter.ID)
}

func (s *memStore) List(_ context.Context) ([]device.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]device.Device, 0, len(s.devices))
	for _, d := range s.devices {
		out = append(out, *d.Clone())
	}
	return out, nil
}

func (s *memStore) ListByRoom(_ context.Context, roomID string) ([]device.Device, error) {
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

func (s *memStore) Save(_ context.Context, d *device.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[d.ID]; !ok {
		return device.ErrDeviceNotFound
	}
	s.devices[d.ID] = d.Clone()
	return nil
}

func (s *memStore) SaveMany(ctx context.Context, devices []*device.Device) error {
	for _, d := range devices {
		if err := s.Save(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) get(id string) *device.Device {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices[id]
}

// nullPublisher satisfies the processor's snapshot publishing.
type nullPublisher struct{}

func (nullPublisher) PublishDeviceStatus(*device.Device) error { return nil }

// nullTracker satisfies the processor's presence surface.
type nullTracker struct{}

func (nullTracker) Track(string, string, time.Time)     {}
func (nullTracker) Heartbeat(string, string, time.Time) {}
func (nullTracker) Untrack(string)                      {}

// recordingForwarder captures broadcast fan-out publishes.
type recordingForwarder struct {
	mu    sync.Mutex
	calls []forwardedCommand
}

type forwardedCommand struct {
	roomID   string
	deviceID string
	cmd      string
	value    any
}

func (f *recordingForwarder) PublishDeviceCommand(roomID, deviceID, cmd string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, forwardedCommand{roomID, deviceID, cmd, value})
	return nil
}

// recordingTelemetry captures status report writes.
type recordingTelemetry struct {
	mu     sync.Mutex
	writes []telemetryWrite
}

type telemetryWrite struct {
	deviceID string
	roomID   string
	fields   map[string]any
}

func (t *recordingTelemetry) WriteStatusReport(deviceID, roomID string, fields map[string]any, _ time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = append(t.writes, telemetryWrite{deviceID, roomID, fields})
}

// recordingEvents captures command outcome notifications.
type recordingEvents struct {
	mu        sync.Mutex
	succeeded []string
	failed    []string
	info      []string
}

func (e *recordingEvents) DeviceControlSucceeded(d *device.Device, cmd string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.succeeded = append(e.succeeded, d.ID+":"+cmd)
}

func (e *recordingEvents) DeviceControlFailed(deviceID, _, cmd string, _ error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed = append(e.failed, deviceID+":"+cmd)
}

func (e *recordingEvents) DeviceInfo(d *device.Device) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.info = append(e.info, d.ID)
}

type routerFixture struct {
	store     *memStore
	forwarder *recordingForwarder
	telemetry *recordingTelemetry
	events    *recordingEvents
	router    *Router
}

func newRouterFixture(devices ...*device.Device) *routerFixture {
	store := newMemStore(devices...)
	log := logging.Default()
	proc := command.NewProcessor(store, nullPublisher{}, nullTracker{}, "Europe/London", log)
	forwarder := &recordingForwarder{}
	telemetry := &recordingTelemetry{}
	events := &recordingEvents{}
	return &routerFixture{
		store:     store,
		forwarder: forwarder,
		telemetry: telemetry,
		events:    events,
		router:    NewRouter(store, proc, forwarder, telemetry, events, log),
	}
}

func roomDevice(id, roomID string) *device.Device {
	return &device.Device{
		ID:          id,
		RoomID:      roomID,
		IsOnline:    true,
		IsConnected: true,
	}
}

func TestHandleMessageInvalidTopicDropped(t *testing.T) {
	f := newRouterFixture()

	if err := f.router.HandleMessage(context.Background(), "nope/kitchen", []byte(`{}`)); err != nil {
		t.Fatalf("invalid topics must be dropped, not raised: %v", err)
	}
}

func TestHandleStatusMergesReport(t *testing.T) {
	d := roomDevice("sensor-1", "hall")
	d.IsOnline = false
	f := newRouterFixture(d)

	payload := []byte(`{"status":true,"value":19.5,"error":"low battery"}`)
	if err := f.router.HandleMessage(context.Background(), "home/hall/sensor-1/status", payload); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	got := f.store.get("sensor-1")
	if !got.Status || got.Value != 19.5 {
		t.Errorf("reported fields not merged: %+v", got)
	}
	if !got.IsOnline {
		t.Error("status report must mark the device online")
	}
	if got.LastSeenAt == nil {
		t.Error("status report must stamp lastSeenAt")
	}
	if got.LastError == nil || *got.LastError != "low battery" {
		t.Error("reported error not recorded")
	}

	if len(f.telemetry.writes) != 1 {
		t.Fatalf("expected one telemetry write, got %d", len(f.telemetry.writes))
	}
	w := f.telemetry.writes[0]
	if w.deviceID != "sensor-1" || w.roomID != "hall" {
		t.Errorf("telemetry tags wrong: %+v", w)
	}
	if w.fields["value"] != 19.5 {
		t.Errorf("telemetry fields wrong: %+v", w.fields)
	}
}

func TestHandleStatusUnknownDeviceDropped(t *testing.T) {
	f := newRouterFixture()

	err := f.router.HandleMessage(context.Background(), "home/hall/ghost-1/status", []byte(`{"status":true}`))
	if err != nil {
		t.Fatalf("unknown device status must be dropped, not raised: %v", err)
	}
	if len(f.telemetry.writes) != 0 {
		t.Error("no telemetry for dropped report")
	}
}

func TestHandleStatusMalformedPayloadDropped(t *testing.T) {
	f := newRouterFixture(roomDevice("sensor-1", "hall"))

	err := f.router.HandleMessage(context.Background(), "home/hall/sensor-1/status", []byte(`{broken`))
	if err != nil {
		t.Fatalf("malformed payload must be dropped, not raised: %v", err)
	}
	if f.store.get("sensor-1").LastSeenAt != nil {
		t.Error("malformed payload must not touch the device")
	}
}

func TestHandleStatusConnectSpecialCase(t *testing.T) {
	d := roomDevice("sensor-1", "hall")
	d.IsOnline = false
	d.IsConnected = false
	f := newRouterFixture(d)

	payload := []byte(`{"command":"device_connect","value":{"ip_address":"10.0.0.9"}}`)
	if err := f.router.HandleMessage(context.Background(), "home/hall/sensor-1/status", payload); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	got := f.store.get("sensor-1")
	if !got.IsConnected || !got.IsOnline {
		t.Error("device_connect on a status topic must run the connect handler")
	}
	if got.IPAddress == nil || *got.IPAddress != "10.0.0.9" {
		t.Error("connect metadata not recorded")
	}
}

func TestHandleControlSuccess(t *testing.T) {
	f := newRouterFixture(roomDevice("light-1", "living-room"))

	payload := []byte(`{"command":"set_status","value":"toggle"}`)
	if err := f.router.HandleMessage(context.Background(), "home/living-room/light-1/control", payload); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if !f.store.get("light-1").Status {
		t.Error("toggle not applied")
	}
	if len(f.events.succeeded) != 1 || f.events.succeeded[0] != "light-1:set_status" {
		t.Errorf("success event not emitted: %v", f.events.succeeded)
	}
}

func TestHandleControlGetInfoEmitsDeviceInfo(t *testing.T) {
	f := newRouterFixture(roomDevice("light-1", "living-room"))

	payload := []byte(`{"command":"get_info"}`)
	if err := f.router.HandleMessage(context.Background(), "home/living-room/light-1/control", payload); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}
	if len(f.events.info) != 1 || f.events.info[0] != "light-1" {
		t.Errorf("device info event not emitted: %v", f.events.info)
	}
}

func TestHandleControlDecodeFailureStampsDevice(t *testing.T) {
	d := roomDevice("light-1", "living-room")
	d.Value = 42
	f := newRouterFixture(d)

	payload := []byte(`{"command":"set_value","value":"abc"}`)
	err := f.router.HandleMessage(context.Background(), "home/living-room/light-1/control", payload)
	if !errors.Is(err, command.ErrValidation) {
		t.Fatalf("expected ErrValidation surfaced, got %v", err)
	}

	got := f.store.get("light-1")
	if got.Value != 42 {
		t.Error("stored value must be unchanged after validation failure")
	}
	if got.LastError == nil {
		t.Error("validation failure must land in device history")
	}
	if len(f.events.failed) != 1 || f.events.failed[0] != "light-1:set_value" {
		t.Errorf("failure event not emitted: %v", f.events.failed)
	}
}

func TestHandleControlBroadcastOnlyRejected(t *testing.T) {
	f := newRouterFixture(roomDevice("light-1", "living-room"))

	payload := []byte(`{"command":"turn_on_all"}`)
	err := f.router.HandleMessage(context.Background(), "home/living-room/light-1/control", payload)
	if !errors.Is(err, command.ErrUnsupportedCommand) {
		t.Fatalf("expected ErrUnsupportedCommand, got %v", err)
	}
}

func TestHandleBroadcastTurnOffAll(t *testing.T) {
	d1 := roomDevice("light-1", "living-room")
	d1.Status = true
	d2 := roomDevice("light-2", "living-room")
	d2.Status = true
	other := roomDevice("fan-1", "kitchen")
	other.Status = true
	f := newRouterFixture(d1, d2, other)

	payload := []byte(`{"command":"turn_off_all"}`)
	if err := f.router.HandleMessage(context.Background(), "home/living-room/broadcast", payload); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if f.store.get("light-1").Status || f.store.get("light-2").Status {
		t.Error("broadcast did not turn off room devices")
	}
	if !f.store.get("fan-1").Status {
		t.Error("broadcast leaked into another room")
	}
	if len(f.forwarder.calls) != 2 {
		t.Fatalf("expected one forwarded command per room device, got %d", len(f.forwarder.calls))
	}
	for _, call := range f.forwarder.calls {
		if call.cmd != "set_status" || call.value != false {
			t.Errorf("broadcast should forward the per-device equivalent: %+v", call)
		}
	}
}

func TestHandleBroadcastSkipsUnsupportedCapability(t *testing.T) {
	level := 20.0
	dimmable := roomDevice("light-1", "living-room")
	dimmable.Brightness = &level
	plain := roomDevice("plug-1", "living-room")
	f := newRouterFixture(dimmable, plain)

	payload := []byte(`{"command":"set_brightness","value":150}`)
	if err := f.router.HandleMessage(context.Background(), "home/living-room/broadcast", payload); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	got := f.store.get("light-1")
	if got.Brightness == nil || *got.Brightness != 100 {
		t.Errorf("dimmable device should be clamped to 100, got %v", got.Brightness)
	}
	if f.store.get("plug-1").Brightness != nil {
		t.Error("device without brightness must be skipped by the fan-out")
	}
	if len(f.forwarder.calls) != 1 || f.forwarder.calls[0].deviceID != "light-1" {
		t.Errorf("only the supporting device should receive the command: %+v", f.forwarder.calls)
	}
}

func TestHandleBroadcastSyncTimeForwardsTimeConfig(t *testing.T) {
	d1 := roomDevice("light-1", "living-room")
	d2 := roomDevice("clock-1", "living-room")
	f := newRouterFixture(d1, d2)

	payload := []byte(`{"command":"sync_time"}`)
	if err := f.router.HandleMessage(context.Background(), "home/living-room/broadcast", payload); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	if len(f.forwarder.calls) != 2 {
		t.Fatalf("expected one forwarded command per room device, got %d", len(f.forwarder.calls))
	}
	for _, call := range f.forwarder.calls {
		if call.cmd != "sync_time" {
			t.Fatalf("forwarded command = %q, want sync_time", call.cmd)
		}
		cfg, ok := call.value.(map[string]any)
		if !ok {
			t.Fatalf("forwarded value should carry the time config, got %T", call.value)
		}
		if cfg["timezone"] != "Europe/London" {
			t.Errorf("timezone = %v, want Europe/London", cfg["timezone"])
		}
		stamp, _ := cfg["time"].(string)
		if _, err := time.Parse(time.RFC3339, stamp); err != nil {
			t.Errorf("time %q is not RFC3339: %v", stamp, err)
		}
	}

	got := f.store.get("light-1")
	if got.Config["timezone"] != "Europe/London" {
		t.Errorf("device config not overwritten with site timezone: %v", got.Config)
	}
}

func TestHandleConfigMergesRoom(t *testing.T) {
	d1 := roomDevice("light-1", "living-room")
	d1.Config = device.Config{"interval": 30}
	d2 := roomDevice("light-2", "living-room")
	f := newRouterFixture(d1, d2)

	payload := []byte(`{"report_rate":5}`)
	if err := f.router.HandleMessage(context.Background(), "home/living-room/config", payload); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	for _, id := range []string{"light-1", "light-2"} {
		got := f.store.get(id)
		if got.Config["report_rate"] != float64(5) {
			t.Errorf("%s: config not merged: %+v", id, got.Config)
		}
		if _, ok := got.Config["updated_at"]; !ok {
			t.Errorf("%s: merge should stamp updated_at", id)
		}
	}
	if f.store.get("light-1").Config["interval"] != 30 {
		t.Error("existing keys should survive the merge")
	}
}

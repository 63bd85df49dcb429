package command

import (
	"context"
	"fmt"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/homelink-io/homelink-core/internal/device"
	"github.com/homelink-io/homelink-core/internal/infrastructure/logging"
)

// Publisher emits retained device state snapshots after command
// application.
type Publisher interface {
	PublishDeviceStatus(d *device.Device) error
}

// Tracker is the presence surface the processor drives. Registry
// membership mirrors the persisted isConnected flag: activity from a
// connected device refreshes liveness, while disconnects and failures
// end it. A device that never announced connection is never tracked.
type Tracker interface {
	Track(deviceID, roomID string, at time.Time)
	Heartbeat(deviceID, roomID string, at time.Time)
	Untrack(deviceID string)
}

// Processor validates and applies commands against persisted device
// state.
//
// Command application is a read-modify-write, so concurrent commands
// for the same device are serialized through a per-device lock: two
// near-simultaneous commands apply in arrival order and never
// interleave a read from one with a write from the other. Independent
// devices proceed fully concurrently.
type Processor struct {
	log      *logging.Logger
	store    device.Repository
	pub      Publisher
	presence Tracker

	// timezone is the site timezone written by sync_time.
	timezone string

	locks cmap.ConcurrentMap[string, *sync.Mutex]
	now   func() time.Time
}

// NewProcessor creates a command processor.
//
// Parameters:
//   - store: Device repository for load and persist
//   - pub: Publisher for post-command status snapshots
//   - presence: Presence registry driven by command outcomes
//   - timezone: Site timezone reported by sync_time
//   - log: Structured logger
func NewProcessor(store device.Repository, pub Publisher, presence Tracker, timezone string, log *logging.Logger) *Processor {
	return &Processor{
		log:      log.With("component", "command"),
		store:    store,
		pub:      pub,
		presence: presence,
		timezone: timezone,
		locks:    cmap.New[*sync.Mutex](),
		now:      time.Now,
	}
}

// Timezone returns the site timezone reported by sync_time.
func (p *Processor) Timezone() string {
	return p.timezone
}

// lock returns the mutex serializing commands for one device, creating
// it on first use.
func (p *Processor) lock(deviceID string) *sync.Mutex {
	return p.locks.Upsert(deviceID, nil, func(exists bool, current, _ *sync.Mutex) *sync.Mutex {
		if exists {
			return current
		}
		return &sync.Mutex{}
	})
}

// Apply executes a command against a device and persists the outcome.
//
// On success the device's lastSeenAt is stamped, the new state is
// saved, and a retained status snapshot is published. Presence follows
// the persisted connection state: a connected device is heartbeated, a
// disconnected one is untracked, so tracking never outlives
// isConnected=false.
// On failure the device is stamped with lastError/lastErrorAt, marked
// disconnected, untracked, and the error is returned after persisting,
// so failures are visible in device history, not just logs.
//
// Returns:
//   - *device.Device: The updated device on success
//   - error: ErrUnsupportedCommand, ErrValidation, ErrDeviceNotFound,
//     or a storage/publish error
func (p *Processor) Apply(ctx context.Context, deviceID string, cmd Command) (*device.Device, error) {
	mu := p.lock(deviceID)
	mu.Lock()
	defer mu.Unlock()

	d, err := p.store.GetByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("loading device %s: %w", deviceID, err)
	}

	now := p.now().UTC()

	if err := p.apply(d, cmd, now); err != nil {
		p.stampFailure(ctx, d, err, now)
		return nil, err
	}

	seen := now
	d.LastSeenAt = &seen
	d.UpdatedAt = now

	if err := p.store.Save(ctx, d); err != nil {
		p.presence.Untrack(d.ID)
		return nil, fmt.Errorf("persisting device %s: %w", d.ID, err)
	}

	if d.IsConnected {
		p.presence.Heartbeat(d.ID, d.RoomID, now)
	} else {
		p.presence.Untrack(d.ID)
	}

	if err := p.pub.PublishDeviceStatus(d); err != nil {
		return d, fmt.Errorf("publishing status for %s: %w", d.ID, err)
	}

	p.log.Debug("command applied",
		"device_id", d.ID,
		"room_id", d.RoomID,
		"command", string(cmd.Type()))
	return d, nil
}

// apply mutates the device according to the command. The switch covers
// the whole sealed vocabulary; the default arm guards against commands
// that are valid wire values but not applicable to a single device.
func (p *Processor) apply(d *device.Device, cmd Command, now time.Time) error {
	switch c := cmd.(type) {
	case SetStatus:
		if c.Toggle {
			d.Status = !d.Status
		} else {
			d.Status = c.Status
		}
	case SetValue:
		d.Value = c.Value
	case SetBrightness:
		level := clamp(c.Level, 0, 100)
		d.Brightness = &level
	case SetSpeed:
		level := clamp(c.Level, 0, 100)
		d.Speed = &level
	case SetTemperature:
		degrees := c.Degrees
		d.Temperature = &degrees
	case UpdateConfig:
		d.MergeConfig(c.Patch)
		d.Config["updated_at"] = now.Format(time.RFC3339)
	case Connect:
		d.IsOnline = true
		d.IsConnected = true
		if c.IPAddress != nil {
			d.IPAddress = c.IPAddress
		}
		if c.MACAddress != nil {
			d.MACAddress = c.MACAddress
		}
		if c.FirmwareVersion != nil {
			d.FirmwareVersion = c.FirmwareVersion
		}
	case Disconnect:
		d.IsOnline = false
		d.IsConnected = false
	case GetStatus, GetInfo:
		// Read-only: the post-apply snapshot publish is the response.
	case SyncTime:
		d.Config = device.Config(TimeConfig(now, p.timezone))
	case TurnOnAll, TurnOffAll:
		return fmt.Errorf("%w: %s is broadcast-only", ErrUnsupportedCommand, cmd.Type())
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedCommand, cmd.Type())
	}
	return nil
}

// Update runs fn against the device under its serialization lock and
// persists the result. Used for ingestion-path merges (device status
// reports) that share mutable state with command application but do not
// publish a snapshot or stamp failures. Presence is refreshed only when
// the persisted state says the device is connected.
//
// Returns:
//   - *device.Device: The updated device on success
//   - error: ErrDeviceNotFound, fn's error, or a storage error
func (p *Processor) Update(ctx context.Context, deviceID string, fn func(d *device.Device, now time.Time) error) (*device.Device, error) {
	mu := p.lock(deviceID)
	mu.Lock()
	defer mu.Unlock()

	d, err := p.store.GetByID(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("loading device %s: %w", deviceID, err)
	}

	now := p.now().UTC()
	if err := fn(d, now); err != nil {
		return nil, err
	}

	seen := now
	d.LastSeenAt = &seen
	d.UpdatedAt = now

	if err := p.store.Save(ctx, d); err != nil {
		return nil, fmt.Errorf("persisting device %s: %w", d.ID, err)
	}

	if d.IsConnected {
		p.presence.Heartbeat(d.ID, d.RoomID, now)
	}
	return d, nil
}

// Fail records a command failure against a device without applying
// anything. Used when a control payload for a known target fails to
// decode, so the failure lands in device history.
//
// Returns:
//   - error: The original cause, always
func (p *Processor) Fail(ctx context.Context, deviceID string, cause error) error {
	mu := p.lock(deviceID)
	mu.Lock()
	defer mu.Unlock()

	d, err := p.store.GetByID(ctx, deviceID)
	if err != nil {
		p.log.Warn("cannot record failure, device not loadable",
			"device_id", deviceID,
			"error", err)
		return cause
	}

	p.stampFailure(ctx, d, cause, p.now().UTC())
	return cause
}

// stampFailure persists the failure onto the device and ends presence
// tracking, holding the invariant that a disconnected device is never
// tracked.
func (p *Processor) stampFailure(ctx context.Context, d *device.Device, cause error, now time.Time) {
	msg := cause.Error()
	at := now
	d.LastError = &msg
	d.LastErrorAt = &at
	d.IsConnected = false
	d.UpdatedAt = now

	if err := p.store.Save(ctx, d); err != nil {
		p.log.Error("persisting failure state",
			"device_id", d.ID,
			"error", err)
	}
	p.presence.Untrack(d.ID)

	p.log.Warn("command failed",
		"device_id", d.ID,
		"room_id", d.RoomID,
		"error", cause)
}

// clamp bounds v to [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"golang.org/x/sync/semaphore"

	"github.com/homelink-io/homelink-core/internal/device"
	"github.com/homelink-io/homelink-core/internal/infrastructure/config"
	"github.com/homelink-io/homelink-core/internal/infrastructure/logging"
)

// defaultSweepConcurrency bounds eviction work when the config leaves
// the cap unset.
const defaultSweepConcurrency = 16

// Record is the tracked liveness state for one device.
type Record struct {
	DeviceID string
	RoomID   string
	LastSeen time.Time
}

// StatusPublisher emits retained device state snapshots.
type StatusPublisher interface {
	PublishDeviceStatus(d *device.Device) error
}

// Registry tracks which devices are alive and runs the offline sweep.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Registry struct {
	log   *logging.Logger
	store device.Repository
	pub   StatusPublisher

	records cmap.ConcurrentMap[string, Record]

	sweepInterval    time.Duration
	offlineThreshold time.Duration
	concurrency      int64
}

// NewRegistry creates a presence registry.
//
// Parameters:
//   - store: Device repository used to persist offline transitions
//   - pub: Publisher for retained offline snapshots
//   - cfg: Heartbeat supervision settings
//   - log: Structured logger
func NewRegistry(store device.Repository, pub StatusPublisher, cfg config.HeartbeatConfig, log *logging.Logger) *Registry {
	concurrency := int64(cfg.SweepConcurrency)
	if concurrency <= 0 {
		concurrency = defaultSweepConcurrency
	}
	return &Registry{
		log:              log.With("component", "presence"),
		store:            store,
		pub:              pub,
		records:          cmap.New[Record](),
		sweepInterval:    cfg.SweepIntervalDuration(),
		offlineThreshold: cfg.OfflineThresholdDuration(),
		concurrency:      concurrency,
	}
}

// Track starts liveness supervision for a device.
// Tracking an already tracked device refreshes its last-seen time.
func (r *Registry) Track(deviceID, roomID string, at time.Time) {
	r.records.Set(deviceID, Record{
		DeviceID: deviceID,
		RoomID:   roomID,
		LastSeen: at,
	})
}

// Heartbeat refreshes a device's last-seen time, tracking it if it was
// not already tracked. Callers invoke it only for devices whose
// persisted state is connected, so registry membership mirrors the
// isConnected flag and a disconnected device is never under
// supervision.
func (r *Registry) Heartbeat(deviceID, roomID string, at time.Time) {
	r.Track(deviceID, roomID, at)
}

// Untrack stops liveness supervision for a device.
// Untracking an unknown device is a no-op.
func (r *Registry) Untrack(deviceID string) {
	r.records.Remove(deviceID)
}

// Tracked reports whether a device is under liveness supervision.
func (r *Registry) Tracked(deviceID string) bool {
	return r.records.Has(deviceID)
}

// LastSeen returns a tracked device's last-seen time.
//
// Returns:
//   - time.Time: Last-seen timestamp (zero if untracked)
//   - bool: Whether the device is tracked
func (r *Registry) LastSeen(deviceID string) (time.Time, bool) {
	rec, ok := r.records.Get(deviceID)
	if !ok {
		return time.Time{}, false
	}
	return rec.LastSeen, true
}

// Count returns the number of tracked devices.
func (r *Registry) Count() int {
	return r.records.Count()
}

// Sweep evicts every tracked device whose silence strictly exceeds the
// offline threshold at the given instant. A device silent for exactly
// the threshold survives the sweep.
//
// Evictions run concurrently, bounded by the configured concurrency cap.
// Each eviction marks the device offline in the store, publishes one
// retained offline snapshot, and removes the device from tracking.
// Per-device failures are logged and do not stop the sweep.
//
// Returns:
//   - int: Number of devices evicted
func (r *Registry) Sweep(ctx context.Context, now time.Time) int {
	var expired []Record
	for item := range r.records.IterBuffered() {
		if now.Sub(item.Val.LastSeen) > r.offlineThreshold {
			expired = append(expired, item.Val)
		}
	}
	if len(expired) == 0 {
		return 0
	}

	sem := semaphore.NewWeighted(r.concurrency)
	var wg sync.WaitGroup
	evicted := 0
	var mu sync.Mutex

	for _, rec := range expired {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(rec Record) {
			defer wg.Done()
			defer sem.Release(1)

			if err := r.evict(ctx, rec); err != nil {
				r.log.Error("eviction failed",
					"device_id", rec.DeviceID,
					"room_id", rec.RoomID,
					"error", err)
				return
			}
			mu.Lock()
			evicted++
			mu.Unlock()
		}(rec)
	}
	wg.Wait()

	if evicted > 0 {
		r.log.Info("sweep evicted silent devices",
			"evicted", evicted,
			"tracked", r.records.Count())
	}
	return evicted
}

// evict transitions one silent device to offline.
//
// The device is untracked regardless of store or publish outcome so the
// invariant that disconnected devices are never tracked holds even when
// persistence fails. A fresh connect announcement re-tracks it.
func (r *Registry) evict(ctx context.Context, rec Record) error {
	defer r.records.Remove(rec.DeviceID)

	d, err := r.store.GetByID(ctx, rec.DeviceID)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			r.log.Warn("tracked device missing from store, dropping",
				"device_id", rec.DeviceID)
			return nil
		}
		return fmt.Errorf("loading device: %w", err)
	}

	d.IsOnline = false
	d.IsConnected = false
	seen := rec.LastSeen
	d.LastSeenAt = &seen
	d.UpdatedAt = time.Now().UTC()

	if err := r.store.Save(ctx, d); err != nil {
		return fmt.Errorf("marking device offline: %w", err)
	}

	if err := r.pub.PublishDeviceStatus(d); err != nil {
		return fmt.Errorf("publishing offline snapshot: %w", err)
	}

	r.log.Info("device declared offline",
		"device_id", rec.DeviceID,
		"room_id", rec.RoomID,
		"last_seen", rec.LastSeen)
	return nil
}

// Run executes the sweep loop until the context is cancelled.
//
// Parameters:
//   - ctx: Controls loop lifetime
//
// Returns:
//   - error: ctx.Err() once cancelled
func (r *Registry) Run(ctx context.Context) error {
	r.log.Info("presence sweep started",
		"interval", r.sweepInterval,
		"offline_threshold", r.offlineThreshold)

	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("presence sweep stopped")
			return ctx.Err()
		case now := <-ticker.C:
			r.Sweep(ctx, now)
		}
	}
}

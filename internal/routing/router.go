package routing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/homelink-io/homelink-core/internal/command"
	"github.com/homelink-io/homelink-core/internal/device"
	"github.com/homelink-io/homelink-core/internal/infrastructure/logging"
)

// CommandForwarder publishes per-device commands when a room broadcast
// is fanned out.
type CommandForwarder interface {
	PublishDeviceCommand(roomID, deviceID, cmd string, value any) error
}

// StatusReport is the wire shape of a device-originated state report.
// All fields are optional: devices report only what changed.
type StatusReport struct {
	Command     string   `json:"command,omitempty"`
	Status      *bool    `json:"status,omitempty"`
	Value       *float64 `json:"value,omitempty"`
	Brightness  *float64 `json:"brightness,omitempty"`
	Speed       *float64 `json:"speed,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	Error       *string  `json:"error,omitempty"`
}

// fields collects the present report fields for telemetry.
func (r StatusReport) fields() map[string]any {
	out := make(map[string]any)
	if r.Status != nil {
		out["status"] = *r.Status
	}
	if r.Value != nil {
		out["value"] = *r.Value
	}
	if r.Brightness != nil {
		out["brightness"] = *r.Brightness
	}
	if r.Speed != nil {
		out["speed"] = *r.Speed
	}
	if r.Temperature != nil {
		out["temperature"] = *r.Temperature
	}
	if r.Error != nil {
		out["error"] = *r.Error
	}
	return out
}

// Router dispatches every accepted publish to its handler.
type Router struct {
	log       *logging.Logger
	store     device.Repository
	proc      *command.Processor
	forwarder CommandForwarder
	telemetry TelemetrySink
	events    EventSink
}

// NewRouter creates a topic router.
//
// Parameters:
//   - store: Device repository for room listings and config merges
//   - proc: Command processor for device-scoped application
//   - forwarder: Publisher for broadcast fan-out
//   - telemetry: Status report sink (nil for none)
//   - events: Command outcome sink (nil for none)
//   - log: Structured logger
func NewRouter(store device.Repository, proc *command.Processor, forwarder CommandForwarder, telemetry TelemetrySink, events EventSink, log *logging.Logger) *Router {
	if telemetry == nil {
		telemetry = NopTelemetrySink{}
	}
	if events == nil {
		events = NopEventSink{}
	}
	return &Router{
		log:       log.With("component", "router"),
		store:     store,
		proc:      proc,
		forwarder: forwarder,
		telemetry: telemetry,
		events:    events,
	}
}

// HandleMessage routes one inbound publish.
//
// Ingestion-path problems (bad topics, malformed payloads, unknown
// devices on status reports, broadcast fan-out failures) are logged and
// recovered locally. Control-path errors are additionally returned so
// the gateway can observe explicit command failures.
func (r *Router) HandleMessage(ctx context.Context, topic string, payload []byte) error {
	t, err := ParseTopic(topic)
	if err != nil {
		r.log.Warn("dropping message on unrecognised topic", "topic", topic)
		return nil
	}

	switch t.Kind {
	case KindStatus:
		r.handleStatus(ctx, t, payload)
	case KindControl:
		return r.handleControl(ctx, t, payload)
	case KindBroadcast:
		r.handleBroadcast(ctx, t, payload)
	case KindConfig:
		r.handleConfig(ctx, t, payload)
	}
	return nil
}

// handleStatus ingests a device state report: merge reported fields,
// mark the device online, refresh presence, forward to telemetry.
//
// A device_connect command arriving on a status topic is routed to the
// connect handler: devices may announce connection before any other
// topic convention is established.
func (r *Router) handleStatus(ctx context.Context, t Topic, payload []byte) {
	var rep StatusReport
	if err := json.Unmarshal(payload, &rep); err != nil {
		r.log.Warn("dropping malformed status report",
			"device_id", t.DeviceID,
			"room_id", t.RoomID)
		return
	}

	if command.Type(rep.Command) == command.TypeDeviceConnect {
		if err := r.handleControl(ctx, t, payload); err != nil {
			r.log.Warn("connect announcement failed",
				"device_id", t.DeviceID,
				"error", err)
		}
		return
	}

	reportedAt := time.Now().UTC()
	d, err := r.proc.Update(ctx, t.DeviceID, func(d *device.Device, now time.Time) error {
		if rep.Status != nil {
			d.Status = *rep.Status
		}
		if rep.Value != nil {
			d.Value = *rep.Value
		}
		if rep.Brightness != nil {
			v := *rep.Brightness
			d.Brightness = &v
		}
		if rep.Speed != nil {
			v := *rep.Speed
			d.Speed = &v
		}
		if rep.Temperature != nil {
			v := *rep.Temperature
			d.Temperature = &v
		}
		if rep.Error != nil {
			msg := *rep.Error
			at := now
			d.LastError = &msg
			d.LastErrorAt = &at
		}
		d.IsOnline = true
		return nil
	})
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			r.log.Warn("dropping status report for unknown device",
				"device_id", t.DeviceID,
				"room_id", t.RoomID)
			return
		}
		r.log.Error("status ingestion failed",
			"device_id", t.DeviceID,
			"error", err)
		return
	}

	r.telemetry.WriteStatusReport(d.ID, d.RoomID, rep.fields(), reportedAt)
}

// handleControl decodes and applies a device-scoped command. Decode
// failures for a known target are stamped into that device's history.
func (r *Router) handleControl(ctx context.Context, t Topic, payload []byte) error {
	cmd, err := command.Decode(payload)
	if err != nil {
		r.events.DeviceControlFailed(t.DeviceID, t.RoomID, rawCommandName(payload), err)
		return r.proc.Fail(ctx, t.DeviceID, err)
	}

	d, err := r.proc.Apply(ctx, t.DeviceID, cmd)
	if err != nil {
		r.events.DeviceControlFailed(t.DeviceID, t.RoomID, string(cmd.Type()), err)
		return err
	}

	r.events.DeviceControlSucceeded(d, string(cmd.Type()))
	if _, ok := cmd.(command.GetInfo); ok {
		r.events.DeviceInfo(d)
	}
	return nil
}

// handleBroadcast fans a room-wide command out to every device in the
// room that supports it, applying the per-device equivalent and
// forwarding it to each device's control topic. Per-device failures do
// not stop the fan-out.
func (r *Router) handleBroadcast(ctx context.Context, t Topic, payload []byte) {
	cmd, err := command.Decode(payload)
	if err != nil {
		r.log.Warn("dropping malformed broadcast",
			"room_id", t.RoomID,
			"error", err)
		return
	}
	per := command.PerDevice(cmd)

	// sync_time carries no wire value of its own: each device receives
	// the server time and site timezone it is expected to adopt.
	value := command.Value(per)
	if _, ok := per.(command.SyncTime); ok {
		value = command.TimeConfig(time.Now().UTC(), r.proc.Timezone())
	}

	devices, err := r.store.ListByRoom(ctx, t.RoomID)
	if err != nil {
		r.log.Error("listing room devices", "room_id", t.RoomID, "error", err)
		return
	}

	applied := 0
	for i := range devices {
		d := &devices[i]
		if !command.Supports(d, per) {
			continue
		}
		if _, err := r.proc.Apply(ctx, d.ID, per); err != nil {
			r.events.DeviceControlFailed(d.ID, t.RoomID, string(per.Type()), err)
			r.log.Warn("broadcast application failed",
				"device_id", d.ID,
				"room_id", t.RoomID,
				"error", err)
			continue
		}
		if err := r.forwarder.PublishDeviceCommand(t.RoomID, d.ID, string(per.Type()), value); err != nil {
			r.log.Error("forwarding broadcast command",
				"device_id", d.ID,
				"room_id", t.RoomID,
				"error", err)
		}
		applied++
	}

	r.log.Info("broadcast fanned out",
		"room_id", t.RoomID,
		"command", string(cmd.Type()),
		"applied", applied,
		"devices", len(devices))
}

// handleConfig shallow-merges an incoming config object into every
// device in the room and persists them in one transaction.
func (r *Router) handleConfig(ctx context.Context, t Topic, payload []byte) {
	var patch map[string]any
	if err := json.Unmarshal(payload, &patch); err != nil || patch == nil {
		r.log.Warn("dropping malformed room config", "room_id", t.RoomID)
		return
	}

	devices, err := r.store.ListByRoom(ctx, t.RoomID)
	if err != nil {
		r.log.Error("listing room devices", "room_id", t.RoomID, "error", err)
		return
	}
	if len(devices) == 0 {
		return
	}

	now := time.Now().UTC()
	updated := make([]*device.Device, 0, len(devices))
	for i := range devices {
		d := &devices[i]
		d.MergeConfig(patch)
		d.Config["updated_at"] = now.Format(time.RFC3339)
		d.UpdatedAt = now
		updated = append(updated, d)
	}

	if err := r.store.SaveMany(ctx, updated); err != nil {
		r.log.Error("persisting room config merge",
			"room_id", t.RoomID,
			"error", err)
		return
	}

	r.log.Info("room config merged",
		"room_id", t.RoomID,
		"devices", len(updated))
}

// rawCommandName best-effort extracts the command field from a payload
// that failed typed decoding, for outcome notifications only.
func rawCommandName(payload []byte) string {
	var msg command.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return ""
	}
	return msg.Command
}

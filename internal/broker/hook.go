package broker

import (
	"bytes"
	"context"
	"errors"
	"strings"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/packets"

	"github.com/homelink-io/homelink-core/internal/command"
	"github.com/homelink-io/homelink-core/internal/device"
	"github.com/homelink-io/homelink-core/internal/infrastructure/logging"
	"github.com/homelink-io/homelink-core/internal/routing"
)

// deviceClientPrefix marks client identifiers that encode a device
// identity. A client connecting as device-{id} is supervised for
// presence from the moment its session is established.
const deviceClientPrefix = "device-"

// coreHook bridges broker lifecycle events into the routing, command
// and presence layers.
type coreHook struct {
	mqtt.HookBase

	log    *logging.Logger
	auth   *Authenticator
	router *routing.Router
	proc   *command.Processor
}

// ID returns the hook identifier.
func (h *coreHook) ID() string {
	return "homelink-core"
}

// Provides indicates which broker events this hook handles.
func (h *coreHook) Provides(b byte) bool {
	return bytes.Contains([]byte{
		mqtt.OnConnectAuthenticate,
		mqtt.OnSessionEstablished,
		mqtt.OnDisconnect,
		mqtt.OnPublished,
	}, []byte{b})
}

// OnConnectAuthenticate gates every connection through the configured
// credential check.
func (h *coreHook) OnConnectAuthenticate(cl *mqtt.Client, pk packets.Packet) bool {
	return h.auth.Allow(cl.ID, string(pk.Connect.Username), string(pk.Connect.Password))
}

// OnSessionEstablished begins presence tracking for clients whose
// identifier encodes a device identity.
func (h *coreHook) OnSessionEstablished(cl *mqtt.Client, _ packets.Packet) {
	deviceID, ok := deviceIDFromClient(cl.ID)
	if !ok {
		return
	}

	if _, err := h.proc.Apply(context.Background(), deviceID, command.Connect{}); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			h.log.Debug("connected client has no backing device",
				"client_id", cl.ID,
				"device_id", deviceID)
			return
		}
		h.log.Error("marking device connected",
			"device_id", deviceID,
			"error", err)
		return
	}

	h.log.Info("device connected", "device_id", deviceID, "client_id", cl.ID)
}

// OnDisconnect marks device clients offline and publishes a final
// retained status so late subscribers immediately see last-known state.
func (h *coreHook) OnDisconnect(cl *mqtt.Client, _ error, _ bool) {
	deviceID, ok := deviceIDFromClient(cl.ID)
	if !ok {
		return
	}

	if _, err := h.proc.Apply(context.Background(), deviceID, command.Disconnect{}); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			return
		}
		h.log.Error("marking device disconnected",
			"device_id", deviceID,
			"error", err)
		return
	}

	h.log.Info("device disconnected", "device_id", deviceID, "client_id", cl.ID)
}

// OnPublished is the sole ingress point into the topic router. Inline
// publishes originate from this process (snapshots, broadcast fan-out)
// and are skipped to avoid re-ingesting our own output.
func (h *coreHook) OnPublished(cl *mqtt.Client, pk packets.Packet) {
	if cl.Net.Inline {
		return
	}

	if err := h.router.HandleMessage(context.Background(), pk.TopicName, pk.Payload); err != nil {
		h.log.Warn("command failed",
			"topic", pk.TopicName,
			"client_id", cl.ID,
			"error", err)
	}
}

// deviceIDFromClient extracts the device identity a client id encodes.
func deviceIDFromClient(clientID string) (string, bool) {
	id, ok := strings.CutPrefix(clientID, deviceClientPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

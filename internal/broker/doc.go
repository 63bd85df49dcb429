// Package broker owns the embedded MQTT server.
//
// The gateway accepts device connections over raw TCP and WebSocket,
// gates every connection through the configured credential check, and
// feeds every accepted publish into the topic router exactly once.
// Client identifiers carry device identity: a client connecting as
// device-{id} is connected and tracked on session establishment and
// marked offline, with a final retained status, when it disconnects.
package broker

// Package publish formats and emits outbound broker messages.
//
// It owns the home/... topic scheme, the command envelope and status
// snapshot wire shapes, and the retain policy: state is retained,
// commands are not. The broker gateway attaches the transport after the
// embedded server is constructed; publishing before that surfaces
// ErrBrokerUnavailable so startup-ordering bugs fail loudly.
package publish

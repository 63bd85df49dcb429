package broker

import (
	"crypto/subtle"

	"github.com/homelink-io/homelink-core/internal/infrastructure/config"
	"github.com/homelink-io/homelink-core/internal/infrastructure/logging"
)

// denyReason is the fixed reason logged for every denied connection.
// Clients are never told which part of the credential was wrong.
const denyReason = "not authorized"

// Authenticator validates client credentials against the single
// statically configured pair.
//
// When no credential is configured the broker runs in open mode and
// accepts every client. This is an explicit relaxed-security mode for
// isolated networks, not an oversight; it is logged at startup.
type Authenticator struct {
	log      *logging.Logger
	username string
	password string
}

// NewAuthenticator creates an authenticator from broker auth config.
func NewAuthenticator(cfg config.BrokerAuthConfig, log *logging.Logger) *Authenticator {
	a := &Authenticator{
		log:      log.With("component", "broker_auth"),
		username: cfg.Username,
		password: cfg.Password,
	}
	if a.OpenMode() {
		a.log.Warn("no broker credentials configured, running in open mode")
	}
	return a
}

// OpenMode reports whether the broker accepts any client.
func (a *Authenticator) OpenMode() bool {
	return a.username == "" && a.password == ""
}

// Allow decides whether a connecting client is accepted. Every decision
// produces a structured log entry.
func (a *Authenticator) Allow(clientID, username, password string) bool {
	if a.OpenMode() {
		a.log.Debug("client allowed (open mode)", "client_id", clientID)
		return true
	}

	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	if userOK && passOK {
		a.log.Debug("client allowed", "client_id", clientID, "username", username)
		return true
	}

	a.log.Warn("client denied",
		"client_id", clientID,
		"username", username,
		"reason", denyReason)
	return false
}

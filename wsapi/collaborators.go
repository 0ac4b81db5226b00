package wsapi

// SettingsProvider supplies the settings snapshot sent to a client right
// after authentication (§4.5 "post-hello provisioning"). Settings
// persistence itself is out of scope for the core (§1); this is a typed
// seam for whatever owns it.
type SettingsProvider interface {
	SettingsSnapshot() interface{}
}

// SessionsProvider supplies the initial project/session sidebar
// snapshot sent after authentication, if one is configured. The
// session-discovery and sidebar aggregation layer itself is explicitly
// out of scope (§1); this interface is the seam that layer plugs into.
// Implementations that return nil skip the `sessions.updated` frame
// entirely.
type SessionsProvider interface {
	SessionsSnapshot() interface{}
}

// noSettingsProvider is the default when none is configured.
type noSettingsProvider struct{}

func (noSettingsProvider) SettingsSnapshot() interface{} { return nil }

// noSessionsProvider is the default when none is configured.
type noSessionsProvider struct{}

func (noSessionsProvider) SessionsSnapshot() interface{} { return nil }

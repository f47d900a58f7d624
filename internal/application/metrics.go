package application

import "expvar"

// Counters exported under "accounts" on the expvar debug endpoint.
var metrics = expvar.NewMap("accounts")

const (
	metricRegistrations  = "registrations"
	metricLogins         = "logins"
	metricLoginFailures  = "login_failures"
	metricProfileUpdates = "profile_updates"
	metricTokenRefreshes = "token_refreshes"
)

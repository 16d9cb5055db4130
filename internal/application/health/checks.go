package health

import (
	"context"
	"time"

	"3tcapital/tokenbroker/internal/application/tokenprovider"
	corehealth "3tcapital/tokenbroker/internal/core/health"
)

const pingTimeout = 2 * time.Second

// StateReporter is satisfied by *tokenprovider.Provider.
type StateReporter interface {
	State() tokenprovider.State
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TokenProviderCheck reports the provider snapshot. It is DEGRADED while
// subscribers hold a token the authority handed out already expired.
func TokenProviderCheck(provider StateReporter) corehealth.Checker {
	return corehealth.CheckerFunc(func(context.Context) corehealth.Component {
		state := provider.State()
		component := corehealth.Component{
			Name:    "token_provider",
			Status:  corehealth.StatusUp,
			Details: state,
		}
		if state.Status == tokenprovider.StatusExpired {
			component.Status = corehealth.StatusDegraded
			component.Error = "authority returned an expired token"
		}
		return component
	})
}

// DatabaseCheck pings the audit database.
func DatabaseCheck(db Pinger) corehealth.Checker {
	return corehealth.CheckerFunc(func(ctx context.Context) corehealth.Component {
		ctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			return corehealth.Component{Name: "database", Status: corehealth.StatusDown, Error: err.Error()}
		}
		return corehealth.Component{Name: "database", Status: corehealth.StatusUp}
	})
}

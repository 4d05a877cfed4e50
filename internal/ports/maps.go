package ports

import (
	"context"

	"battlearena/internal/domain"
)

// MapInstance is one provisioned copy of a map that a competition is played on.
type MapInstance struct {
	ID      string
	Map     domain.MapDef
	MatchID string
}

// MapProvisioner brings map instances up and tears them down.
type MapProvisioner interface {
	// Provision prepares an instance of m bound to the given competition.
	Provision(ctx context.Context, arena *domain.Arena, m domain.MapDef, competitionID string) (MapInstance, error)
	// Release unloads the instance and deletes its backing storage. Implementations must not
	// block on work that re-enters the control loop.
	Release(ctx context.Context, instance MapInstance) error
}

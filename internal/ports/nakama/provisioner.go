package nakama

import (
	"context"

	"github.com/heroiclabs/nakama-common/api"
	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/rotisserie/eris"

	"battlearena/internal/domain"
	"battlearena/internal/ports"
)

// MatchRuntime is the part of runtime.NakamaModule used to run map instances.
type MatchRuntime interface {
	MatchCreate(ctx context.Context, module string, params map[string]interface{}) (string, error)
	MatchSignal(ctx context.Context, id string, data string) (string, error)
	StorageList(ctx context.Context, callerID, userID, collection string, limit int, cursor string) ([]*api.StorageObject, string, error)
	StorageDelete(ctx context.Context, deletes []*runtime.StorageDelete) error
}

// MatchProvisioner implements ports.MapProvisioner with one authoritative match per instance.
type MatchProvisioner struct {
	nk     MatchRuntime
	logger runtime.Logger
	// done, when set, receives a value after each asynchronous release finishes.
	done chan struct{}
}

func NewMatchProvisioner(nk MatchRuntime, logger runtime.Logger) *MatchProvisioner {
	return &MatchProvisioner{nk: nk, logger: logger}
}

// Provision creates the competition's match. Nakama runs MatchInit on the calling goroutine,
// which never touches the control loop.
func (p *MatchProvisioner) Provision(ctx context.Context, arena *domain.Arena, m domain.MapDef, competitionID string) (ports.MapInstance, error) {
	matchID, err := p.nk.MatchCreate(ctx, MatchNameCompetition, map[string]interface{}{
		"competition_id": competitionID,
		"arena":          arena.Name,
		"map":            m.Name,
		"dynamic":        m.Type == domain.MapDynamic,
	})
	if err != nil {
		return ports.MapInstance{}, eris.Wrapf(err, "failed to create match for %s/%s", arena.Name, m.Name)
	}
	return ports.MapInstance{ID: competitionID, Map: m, MatchID: matchID}, nil
}

// Release terminates the match and, for dynamic maps, deletes the instance storage. It returns
// at once: MatchSignal waits on the match goroutine, which may itself wait on the control loop.
func (p *MatchProvisioner) Release(_ context.Context, instance ports.MapInstance) error {
	go func() {
		if p.done != nil {
			defer func() { p.done <- struct{}{} }()
		}
		ctx := context.Background()
		if instance.MatchID != "" {
			if _, err := p.nk.MatchSignal(ctx, instance.MatchID, SignalTerminate); err != nil {
				p.logger.WithField("match", instance.MatchID).Warn("failed to signal match: %v", err)
			}
		}
		if instance.Map.Type != domain.MapDynamic {
			return
		}
		if err := p.deleteStorage(ctx, StorageCollectionPrefix+instance.ID); err != nil {
			p.logger.WithField("instance", instance.ID).Error(eris.ToString(err, true))
		}
	}()
	return nil
}

func (p *MatchProvisioner) deleteStorage(ctx context.Context, collection string) error {
	var cursor string
	for {
		objs, next, err := p.nk.StorageList(ctx, "", "", collection, 100, cursor)
		if err != nil {
			return eris.Wrapf(err, "failed to list %s", collection)
		}
		if len(objs) > 0 {
			deletes := make([]*runtime.StorageDelete, 0, len(objs))
			for _, obj := range objs {
				deletes = append(deletes, &runtime.StorageDelete{
					Collection: obj.Collection,
					Key:        obj.Key,
					UserID:     obj.UserId,
				})
			}
			if err := p.nk.StorageDelete(ctx, deletes); err != nil {
				return eris.Wrapf(err, "failed to delete %d objects from %s", len(deletes), collection)
			}
		}
		if next == "" {
			return nil
		}
		cursor = next
	}
}

var _ ports.MapProvisioner = (*MatchProvisioner)(nil)

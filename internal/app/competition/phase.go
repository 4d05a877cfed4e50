package competition

import (
	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/rotisserie/eris"

	"battlearena/internal/app/event"
	"battlearena/internal/domain"
)

// ErrUnknownPhase means the arena references a phase type that has no provider or definition.
var ErrUnknownPhase = eris.New("no provider registered for phase")

// Phase is one stage of a competition lifecycle. Phases receive the competition they
// run in as an argument and never keep a reference to it beyond pending timers.
type Phase interface {
	Type() domain.PhaseType
	AllowsJoin() bool
	AllowsSpectate() bool
	// Next is the successor phase type, empty when terminal.
	Next() domain.PhaseType
	Start(c *Competition)
	// End tears the phase down. force is set when the competition is being destroyed.
	End(c *Competition, force bool)
	// MembershipChanged is called after a player joins, leaves or is eliminated.
	MembershipChanged(c *Competition)
}

// PhaseProvider builds a fresh phase from its configuration.
type PhaseProvider func(def domain.PhaseDef) Phase

// DefaultProviders returns the built-in phase providers.
func DefaultProviders() map[domain.PhaseType]PhaseProvider {
	return map[domain.PhaseType]PhaseProvider{
		domain.PhaseWaiting:   func(def domain.PhaseDef) Phase { return &waitingPhase{basePhase: newBasePhase(def, true, true)} },
		domain.PhaseCountdown: func(def domain.PhaseDef) Phase { return &countdownPhase{basePhase: newBasePhase(def, true, true)} },
		domain.PhaseInGame:    func(def domain.PhaseDef) Phase { return &inGamePhase{basePhase: newBasePhase(def, false, true)} },
		domain.PhaseVictory:   func(def domain.PhaseDef) Phase { return &victoryPhase{basePhase: newBasePhase(def, false, true)} },
	}
}

// PhaseManager owns the current phase of one competition.
type PhaseManager struct {
	arena     *domain.Arena
	providers map[domain.PhaseType]PhaseProvider
	logger    runtime.Logger
	current   Phase
}

// NewPhaseManager creates a manager with no current phase.
func NewPhaseManager(arena *domain.Arena, providers map[domain.PhaseType]PhaseProvider, logger runtime.Logger) *PhaseManager {
	return &PhaseManager{arena: arena, providers: providers, logger: logger}
}

// Current returns the active phase, nil before the first transition.
func (pm *PhaseManager) Current() Phase {
	return pm.current
}

// CurrentType returns the type of the active phase.
func (pm *PhaseManager) CurrentType() domain.PhaseType {
	if pm.current == nil {
		return ""
	}
	return pm.current.Type()
}

// SetPhase swaps in a new phase of type t, ending the previous one and starting the new one.
// A phase without provider or definition is a broken arena: the error is logged and the
// current phase stays untouched.
func (pm *PhaseManager) SetPhase(c *Competition, t domain.PhaseType) error {
	def, ok := pm.arena.Phase(t)
	if !ok {
		return pm.fail(eris.Wrapf(ErrUnknownPhase, "arena %q has no %q phase", pm.arena.Name, t))
	}
	provider, ok := pm.providers[t]
	if !ok {
		return pm.fail(eris.Wrapf(ErrUnknownPhase, "arena %q phase %q", pm.arena.Name, t))
	}
	next := provider(def)
	if next == nil {
		return pm.fail(eris.Wrapf(ErrUnknownPhase, "arena %q phase %q provider returned nil", pm.arena.Name, t))
	}

	prev := pm.current
	pm.current = next
	if prev != nil {
		prev.End(c, false)
	}
	c.publish(event.Event{Kind: event.KindPhaseStart, Phase: t})
	next.Start(c)
	return nil
}

// End tears down the active phase without moving to another one.
func (pm *PhaseManager) End(c *Competition, force bool) {
	if pm.current != nil {
		pm.current.End(c, force)
	}
}

func (pm *PhaseManager) fail(err error) error {
	if pm.logger != nil {
		pm.logger.Error("phase transition aborted: %s", eris.ToString(err, true))
	}
	return err
}

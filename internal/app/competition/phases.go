package competition

import (
	"battlearena/internal/app/event"
	"battlearena/internal/domain"
)

type basePhase struct {
	def           domain.PhaseDef
	allowJoin     bool
	allowSpectate bool
	cancel        func()
}

func newBasePhase(def domain.PhaseDef, join, spectate bool) basePhase {
	b := basePhase{def: def, allowJoin: join, allowSpectate: spectate}
	if def.AllowJoin != nil {
		b.allowJoin = *def.AllowJoin
	}
	if def.AllowSpectate != nil {
		b.allowSpectate = *def.AllowSpectate
	}
	return b
}

func (b *basePhase) Type() domain.PhaseType { return b.def.Type }
func (b *basePhase) AllowsJoin() bool { return b.allowJoin }
func (b *basePhase) AllowsSpectate() bool { return b.allowSpectate }
func (b *basePhase) Next() domain.PhaseType { return b.def.Next }
func (b *basePhase) MembershipChanged(*Competition) {}

func (b *basePhase) End(*Competition, bool) {
	b.stopTimer()
}

func (b *basePhase) stopTimer() {
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

// waitingPhase holds players until the arena minimum is reached.
type waitingPhase struct {
	basePhase
}

func (p *waitingPhase) Start(c *Competition) {
	p.MembershipChanged(c)
}

func (p *waitingPhase) MembershipChanged(c *Competition) {
	if p.def.Next == "" || c.Phases().Current() != Phase(p) {
		return
	}
	if len(c.Players()) >= c.Arena().MinPlayers() {
		_ = c.Phases().SetPhase(c, p.def.Next)
	}
}

// countdownPhase moves on after its duration and falls back to waiting when players drop below the minimum.
type countdownPhase struct {
	basePhase
}

func (p *countdownPhase) Start(c *Competition) {
	p.cancel = c.after(p.def.Duration, func() {
		if c.Phases().Current() != Phase(p) || p.def.Next == "" {
			return
		}
		_ = c.Phases().SetPhase(c, p.def.Next)
	})
}

func (p *countdownPhase) MembershipChanged(c *Competition) {
	if c.Phases().Current() != Phase(p) {
		return
	}
	if len(c.Players()) < c.Arena().MinPlayers() {
		if _, ok := c.Arena().Phase(domain.PhaseWaiting); ok {
			_ = c.Phases().SetPhase(c, domain.PhaseWaiting)
		}
	}
}

// inGamePhase resolves the game when a single side is left standing.
type inGamePhase struct {
	basePhase
}

func (p *inGamePhase) Start(c *Competition) {
	if p.def.Duration > 0 {
		p.cancel = c.after(p.def.Duration, func() {
			if c.Phases().Current() == Phase(p) {
				c.Draw()
			}
		})
	}
	p.MembershipChanged(c)
}

func (p *inGamePhase) MembershipChanged(c *Competition) {
	if c.Phases().Current() != Phase(p) {
		return
	}
	sides := c.standingSides()
	switch len(sides) {
	case 0:
		c.Draw()
	case 1:
		c.Victory(sides[0])
	}
}

// victoryPhase lets the result sink in, then completes the competition.
type victoryPhase struct {
	basePhase
}

func (p *victoryPhase) Start(c *Competition) {
	p.cancel = c.after(p.def.Duration, func() {
		if c.Phases().Current() != Phase(p) {
			return
		}
		p.cancel = nil
		c.publish(event.Event{Kind: event.KindPhaseComplete, Phase: p.def.Type})
		c.complete()
	})
}

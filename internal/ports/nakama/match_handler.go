package nakama

import (
	"context"
	"database/sql"

	"github.com/heroiclabs/nakama-common/runtime"

	"battlearena/internal/domain"
)

const matchTickRate = 5

// MatchState is the per-match state Nakama threads through the handler callbacks. The
// competition itself lives on the control loop; the match only relays it to clients.
type MatchState struct {
	CompetitionID string
	Arena         string
	Map           string
	Dynamic       bool
	Presences     map[string]runtime.Presence
	Label         matchLabel
	terminate     bool
}

type matchHandler struct {
	plugin *Plugin
}

// MatchInit runs inside MatchCreate, which the control loop calls while provisioning. It must
// never wait on the loop.
func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	state := &MatchState{Presences: make(map[string]runtime.Presence)}
	state.CompetitionID, _ = params["competition_id"].(string)
	state.Arena, _ = params["arena"].(string)
	state.Map, _ = params["map"].(string)
	state.Dynamic, _ = params["dynamic"].(bool)
	state.Label = matchLabel{Arena: state.Arena, Competition: state.CompetitionID}

	label, err := state.Label.encode()
	if err != nil {
		logger.Error("MatchInit: failed to encode label: %v", err)
	}
	logger.WithFields(map[string]interface{}{
		"competition": state.CompetitionID,
		"arena":       state.Arena,
		"map":         state.Map,
	}).Debug("MatchInit: competition match created.")
	return state, matchTickRate, label
}

// MatchJoinAttempt admits only members of the competition. Players become members through the
// join RPCs before they connect to the match.
func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	ms, ok := state.(*MatchState)
	if !ok {
		return state, false, "state not found"
	}
	if ms.terminate {
		return ms, false, "competition closed"
	}
	member, err := mh.isMember(ctx, ms.CompetitionID, presence.GetUserId())
	if err != nil {
		logger.Warn("MatchJoinAttempt: membership check failed: %v", err)
		return ms, false, "arena is busy"
	}
	if !member {
		return ms, false, "not part of this competition"
	}
	return ms, true, ""
}

func (mh *matchHandler) isMember(ctx context.Context, competitionID, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, mh.plugin.cfg.CallTimeout)
	defer cancel()
	result := make(chan bool, 1)
	err := mh.plugin.loop.Call(ctx, func() {
		c, ok := mh.plugin.manager.Competition(competitionID)
		if !ok {
			result <- false
			return
		}
		_, member := c.Member(userID)
		result <- member
	})
	if err != nil {
		return false, err
	}
	return <-result, nil
}

func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	ms, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchJoin: state not found")
		return state
	}
	for _, p := range presences {
		ms.Presences[p.GetUserId()] = p
	}
	return ms
}

// MatchLeave drops a player whose connection to the match is gone from the competition.
func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	ms, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchLeave: state not found")
		return state
	}
	for _, p := range presences {
		delete(ms.Presences, p.GetUserId())
		if !ms.terminate {
			mh.leave(ms.CompetitionID, p.GetUserId(), domain.CauseDisconnect)
		}
	}
	return ms
}

// leave removes userID unless they already moved on to another competition.
func (mh *matchHandler) leave(competitionID, userID string, cause domain.LeaveCause) {
	mh.plugin.loop.Run(func() {
		c, ok := mh.plugin.manager.CompetitionOf(userID)
		if !ok || c.ID() != competitionID {
			return
		}
		mh.plugin.manager.Leave(userID, cause)
	})
}

func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	ms, ok := state.(*MatchState)
	if !ok {
		return state
	}
	if !ms.terminate {
		for _, msg := range messages {
			switch msg.GetOpCode() {
			case OpEliminated:
				mh.handleEliminated(ms, msg, logger)
			case OpLeaveArena:
				mh.leave(ms.CompetitionID, msg.GetUserId(), domain.CauseCommand)
			default:
				logger.Warn("MatchLoop: Unknown opcode received: %d", msg.GetOpCode())
			}
		}
	}

	events, label, hasLabel := mh.plugin.outbox.drain(ms.CompetitionID)
	for _, ev := range events {
		mh.broadcast(ms, dispatcher, logger, eventOpCodes[ev.Kind], ev.Payload, ev.Recipients)
	}

	// The last events of a removed competition still go out before the match stops.
	if ms.terminate {
		mh.plugin.outbox.drop(ms.CompetitionID)
		logger.WithField("competition", ms.CompetitionID).Debug("MatchLoop: competition removed, terminating match.")
		return nil
	}
	if hasLabel && label != ms.Label {
		mh.updateLabel(ms, dispatcher, logger, label)
	}
	return ms
}

// handleEliminated marks a player as out of the game. Clients may name the eliminated player,
// otherwise the sender is eliminated.
func (mh *matchHandler) handleEliminated(ms *MatchState, msg runtime.MatchData, logger runtime.Logger) {
	userID := msg.GetUserId()
	if data := msg.GetData(); len(data) > 0 {
		fields, err := decodeStruct(data)
		if err != nil {
			logger.Warn("handleEliminated: bad payload from %s: %v", msg.GetUserId(), err)
			return
		}
		if player, ok := fields["player"].(string); ok && player != "" {
			userID = player
		}
	}
	competitionID := ms.CompetitionID
	mh.plugin.loop.Run(func() {
		c, ok := mh.plugin.manager.Competition(competitionID)
		if !ok {
			return
		}
		c.Eliminate(userID)
	})
}

func (mh *matchHandler) broadcast(ms *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, opCode int64, payload map[string]any, recipients []string) {
	var targets []runtime.Presence
	if len(recipients) > 0 {
		for _, id := range recipients {
			if p, ok := ms.Presences[id]; ok {
				targets = append(targets, p)
			}
		}
		if len(targets) == 0 {
			return
		}
	}
	data, err := encodeStruct(payload)
	if err != nil {
		logger.Error("broadcast: failed to encode op %d: %v", opCode, err)
		return
	}
	if err := dispatcher.BroadcastMessage(opCode, data, targets, nil, true); err != nil {
		logger.Warn("broadcast: failed to send op %d: %v", opCode, err)
	}
}

func (mh *matchHandler) updateLabel(ms *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, label matchLabel) {
	encoded, err := label.encode()
	if err != nil {
		logger.Error("updateLabel: %v", err)
		return
	}
	if err := dispatcher.MatchLabelUpdate(encoded); err != nil {
		logger.Warn("updateLabel: failed to update label: %v", err)
		return
	}
	ms.Label = label
}

func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, graceSeconds int) interface{} {
	if ms, ok := state.(*MatchState); ok {
		ms.terminate = true
		mh.plugin.outbox.drop(ms.CompetitionID)
	}
	return state
}

// MatchSignal handles the terminate signal sent when the competition is released. The match
// stops on its next tick.
func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	ms, ok := state.(*MatchState)
	if !ok {
		return state, ""
	}
	if data == SignalTerminate {
		ms.terminate = true
		return ms, "terminating"
	}
	return ms, ""
}

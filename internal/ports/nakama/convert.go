package nakama

import (
	"github.com/rotisserie/eris"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"battlearena/internal/app"
	"battlearena/internal/app/competition"
	"battlearena/internal/domain"
)

// matchLabel is the searchable label of a competition match.
type matchLabel struct {
	Arena       string
	Competition string
	Phase       string
	Players     int
	Open        bool
}

func labelOf(c *competition.Competition) matchLabel {
	return matchLabel{
		Arena:       c.Arena().Name,
		Competition: c.ID(),
		Phase:       string(c.Phases().CurrentType()),
		Players:     len(c.Players()),
		Open:        c.CanJoin("", domain.RolePlaying).Success,
	}
}

func (l matchLabel) encode() (string, error) {
	b, err := encodeStruct(map[string]any{
		"arena":       l.Arena,
		"competition": l.Competition,
		"phase":       l.Phase,
		"players":     l.Players,
		"open":        l.Open,
	})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var eventOpCodes = map[app.EventKind]int64{
	app.EventPlayerJoined:     OpPlayerJoined,
	app.EventPlayerSpectating: OpPlayerSpectating,
	app.EventPlayerLeft:       OpPlayerLeft,
	app.EventVictory:          OpVictory,
	app.EventLoss:             OpLoss,
	app.EventDraw:             OpDraw,
	app.EventPhaseStarted:     OpPhaseStarted,
	app.EventPhaseCompleted:   OpPhaseCompleted,
}

func encodeStruct(fields map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, eris.Wrap(err, "failed to build struct")
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return nil, eris.Wrap(err, "failed to marshal struct")
	}
	return b, nil
}

func decodeStruct(data []byte) (map[string]any, error) {
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, eris.Wrap(err, "failed to unmarshal struct")
	}
	return s.AsMap(), nil
}

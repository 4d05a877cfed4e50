package domain

// PlayerRole describes how a participant takes part in a competition.
type PlayerRole string

const (
	// RolePlaying marks a participant that is part of the match.
	RolePlaying PlayerRole = "playing"
	// RoleSpectating marks a participant that only watches.
	RoleSpectating PlayerRole = "spectating"
)

// LeaveCause tells listeners why a participant left a competition.
type LeaveCause string

const (
	CauseCommand    LeaveCause = "command"
	CauseDisconnect LeaveCause = "disconnect"
	CauseGame       LeaveCause = "game"
	CauseShutdown   LeaveCause = "shutdown"
	CausePlugin     LeaveCause = "plugin"
	CauseKicked     LeaveCause = "kicked"
	CauseMapRemoved LeaveCause = "map_removed"
)

// JoinResult is the outcome of a join check. Message holds a message id when the join is refused.
type JoinResult struct {
	Success bool
	Message string
}

// JoinSuccess is the result returned when nothing prevents a join.
var JoinSuccess = JoinResult{Success: true}

// JoinFailure builds a failed result carrying the message id explaining why.
func JoinFailure(messageID string) JoinResult {
	return JoinResult{Message: messageID}
}

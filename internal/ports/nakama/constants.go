package nakama

const (
	// MatchNameCompetition is the authoritative match handler bound to one competition.
	MatchNameCompetition = "arena_competition"

	// SignalTerminate asks a competition match to stop on its next tick.
	SignalTerminate = "terminate"

	// StorageCollectionPrefix prefixes the per-instance storage collection of a map.
	StorageCollectionPrefix = "arena_map_"

	// NotificationCodeArena is the notification code used for every arena message.
	NotificationCodeArena = 120
)

// RPC ids registered with Nakama.
const (
	RpcArenaJoin         = "arena_join"
	RpcArenaSpectate     = "arena_spectate"
	RpcArenaLeave        = "arena_leave"
	RpcTournamentCreate  = "tournament_create"
	RpcTournamentStart   = "tournament_start"
	RpcTournamentEnd     = "tournament_end"
	RpcTournamentList    = "tournament_list"
	RpcTournamentJoin    = "tournament_join"
	RpcTournamentLeave   = "tournament_leave"
	RpcTournamentHistory = "tournament_history"
	RpcDuelRequest       = "duel_request"
	RpcDuelAccept        = "duel_accept"
	RpcDuelDeny          = "duel_deny"
	RpcDuelCancel        = "duel_cancel"
	RpcArenaVoiceToken   = "arena_voice_token"
)

// Op codes for client messages and server events.
const (
	// Client -> Server
	OpEliminated int64 = 1
	OpLeaveArena int64 = 2

	// Server -> Client events
	OpPlayerJoined     int64 = 101
	OpPlayerSpectating int64 = 102
	OpPlayerLeft       int64 = 103
	OpVictory          int64 = 104 // sent privately
	OpLoss             int64 = 105 // sent privately
	OpDraw             int64 = 106
	OpPhaseStarted     int64 = 107
	OpPhaseCompleted   int64 = 108
)

// Runtime environment keys.
const (
	EnvConfigPath = "arena_config_path"
	EnvDebug      = "arena_debug_errors"
)

// gRPC-style status codes returned through runtime.NewError.
const (
	codeInvalidArgument = 3
	codeInternal        = 13
	codeUnavailable     = 14
	codeUnauthenticated = 16
)

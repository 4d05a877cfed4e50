package domain

// Message ids shared by the arena, tournament and duel layers. Templates live in the message catalog.
const (
	MsgArenaNotFound          = "arena-not-found"
	MsgArenaNotJoinable       = "arena-not-joinable"
	MsgArenaNotSpectatable    = "arena-not-spectatable"
	MsgArenaFull              = "arena-full"
	MsgArenaTeamFull          = "arena-team-full"
	MsgArenaNoOpenCompetition = "arena-no-open-competition"
	MsgArenaNoMap             = "arena-no-map"
	MsgArenaDynamicCapReached = "arena-dynamic-cap-reached"
	MsgArenaProvisionFailed   = "arena-provision-failed"
	MsgArenaAlreadyJoined     = "arena-already-joined"
	MsgArenaNotInCompetition  = "arena-not-in-competition"
	MsgArenaJoined            = "arena-joined"
	MsgArenaSpectating        = "arena-spectating"
	MsgArenaLeft              = "arena-left"

	MsgTournamentAlreadyExists     = "tournament-already-exists"
	MsgTournamentNotFound          = "tournament-not-found"
	MsgTournamentAlreadyStarted    = "tournament-already-started"
	MsgTournamentNotEnoughPlayers  = "tournament-not-enough-players"
	MsgTournamentNotEnoughArenas   = "tournament-not-enough-arenas"
	MsgTournamentTeamSizeTooSmall  = "tournament-team-size-too-small"
	MsgTournamentTeamAmountInvalid = "tournament-team-amount-invalid"
	MsgTournamentPlayersInGame     = "tournament-players-in-game"
	MsgTournamentInProgress        = "tournament-in-progress"
	MsgTournamentCreated           = "tournament-created"
	MsgTournamentJoined            = "tournament-joined"
	MsgTournamentLeft              = "tournament-left"
	MsgTournamentNotJoined         = "tournament-not-joined"
	MsgTournamentStarted           = "tournament-started"
	MsgTournamentEnded             = "tournament-ended"
	MsgTournamentFirstRound        = "tournament-first-round"
	MsgTournamentNextRound         = "tournament-next-round"
	MsgTournamentAdvanceDelay      = "tournament-advance-delay"
	MsgTournamentBye               = "tournament-bye"
	MsgTournamentRoundWon          = "tournament-round-won"
	MsgTournamentRoundLost         = "tournament-round-lost"
	MsgTournamentRoundDraw         = "tournament-round-draw"
	MsgTournamentWinner            = "tournament-winner"
	MsgTournamentDraw              = "tournament-draw"
	MsgTournamentNotSeated         = "tournament-not-seated"

	MsgDuelNoTarget         = "duel-no-target"
	MsgDuelSelf             = "duel-self"
	MsgDuelAlreadyRequested = "duel-already-requested"
	MsgDuelNoRequest        = "duel-no-request"
	MsgDuelInCompetition    = "duel-in-competition"
	MsgDuelRequested        = "duel-requested"
	MsgDuelReceived         = "duel-received"
	MsgDuelAccepted         = "duel-accepted"
	MsgDuelDenied           = "duel-denied"
	MsgDuelCancelled        = "duel-cancelled"
	MsgDuelExpired          = "duel-expired"
	MsgDuelReserved         = "duel-reserved"
	MsgDuelClosed           = "duel-closed"

	MsgVoiceUnavailable = "voice-unavailable"
	MsgNotice           = "notice"
)

package matchmaking

// Notification keys.
const (
	KeyQueueJoined        = "queue.joined"
	KeyQueueLeft          = "queue.left"
	KeyAlreadyInQueue     = "queue.already_in_queue"
	KeyAlreadyInGame      = "queue.already_in_game"
	KeyQueueFull          = "queue.full"
	KeyMapVotingStarted   = "queue.map_voting_started"
	KeyVoted              = "queue.voted"
	KeyGameStarting       = "queue.game_starting"
	KeyCountdownCancelled = "queue.countdown_cancelled"
	KeyWaitingForPlayers  = "queue.waiting_for_players"
	KeyRandomMapSelected  = "queue.random_map_selected"
	KeyMostVotedMap       = "queue.most_voted_map"
	KeyNoArenasAvailable  = "errors.no_arenas_available"
	KeyNotInQueue         = "errors.not_in_queue"
	KeyShuttingDown       = "errors.shutting_down"
	KeyGameStarted        = "game.started"
	KeyCageOpening        = "game.cage_opening"
	KeyCagesOpened        = "game.cages_opened"
	KeyPlayerEliminated   = "game.player_eliminated"
	KeyPlayerQuit         = "game.player_quit"
	KeyYouEliminated      = "game.you_eliminated"
	KeySpectatorMode      = "game.spectator_mode"
	KeyKill               = "game.kill"
	KeyWinner             = "game.winner"
	KeyTeamWinner         = "game.team_winner"
	KeyNoWinner           = "game.no_winner"
	KeyTimeLimit          = "game.time_limit"
	KeyGameEnded          = "game.game_ended"
)

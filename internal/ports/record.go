package ports

import "time"

// ContestantRecord is a contestant's final standing in an archived tournament.
type ContestantRecord struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
	Wins    int      `json:"wins"`
	Losses  int      `json:"losses"`
	Byes    int      `json:"byes"`
}

// TournamentRecord summarizes one finished tournament.
type TournamentRecord struct {
	ID          string             `json:"id"`
	Arena       string             `json:"arena"`
	Winners     []string           `json:"winners"`
	Rounds      int                `json:"rounds"`
	Contestants []ContestantRecord `json:"contestants"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	Ended       bool               `json:"ended"`
}

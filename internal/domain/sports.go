package domain

// SportsGame is the latest known state of one game from the sports feed.
type SportsGame struct {
	GameID             int64   `json:"game_id"`
	LeagueAbbreviation string  `json:"league_abbreviation"`
	Slug               string  `json:"slug"`
	HomeTeam           string  `json:"home_team"`
	AwayTeam           string  `json:"away_team"`
	Status             string  `json:"status"`
	Score              *string `json:"score"`
	Period             *string `json:"period"`
	Elapsed            *string `json:"elapsed"`
	Live               bool    `json:"live"`
	Ended              bool    `json:"ended"`
	Turn               *string `json:"turn"`
	FinishedTimestamp  *string `json:"finished_timestamp"`
	UpdatedAt          int64   `json:"updated_at"`
}

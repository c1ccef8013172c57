package polymarket

import (
	"bytes"
	"encoding/json"

	"github.com/alanyoungcy/predexchange/internal/domain"
)

// ChannelSports is the channel name of the sports websocket.
const ChannelSports = "sports"

// IsPing reports whether a sports frame is the server's text keepalive.
func IsPing(frame []byte) bool {
	return bytes.Equal(bytes.TrimSpace(frame), []byte("ping"))
}

// PongMessage answers a text keepalive.
var PongMessage = []byte("pong")

// ParseSportResult converts a sports frame to a game update. Frames that are
// not JSON objects or carry no usable gameId are rejected.
func ParseSportResult(raw []byte, updatedAt int64) (domain.SportsGame, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return domain.SportsGame{}, false
	}
	var r sportResult
	if err := json.Unmarshal(raw, &r); err != nil || r.GameID == nil || !r.GameID.ok {
		return domain.SportsGame{}, false
	}
	return domain.SportsGame{
		GameID:             r.GameID.v,
		LeagueAbbreviation: string(r.LeagueAbbreviation),
		Slug:               string(r.Slug),
		HomeTeam:           string(r.HomeTeam),
		AwayTeam:           string(r.AwayTeam),
		Status:             string(r.Status),
		Score:              r.Score.ptr(),
		Period:             r.Period.ptr(),
		Elapsed:            r.Elapsed.ptr(),
		Live:               bool(r.Live),
		Ended:              bool(r.Ended),
		Turn:               r.Turn.ptr(),
		FinishedTimestamp:  r.FinishedTimestamp.ptr(),
		UpdatedAt:          updatedAt,
	}, true
}

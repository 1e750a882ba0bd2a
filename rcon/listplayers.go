package rcon

import (
	"strings"
)

// OnlinePlayer is one row of an ARK ListPlayers response.
type OnlinePlayer struct {
	Name     string
	PlayerID string
}

// ParsePlayerList parses the output of the ARK ListPlayers command:
//
//	0. Survivor, 000266ef6aa54c59a8d26046ec8f4e09
//	1. Bob, 0002aa31f6244f7795c4a0e6d43bfa52
//
// An empty server answers "No Players Connected". Rows that do not match the
// "index. name, id" shape are skipped.
func ParsePlayerList(response string) []OnlinePlayer {
	var players []OnlinePlayer
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "No Players Connected") {
			continue
		}
		dot := strings.Index(line, ". ")
		if dot < 0 {
			continue
		}
		rest := line[dot+2:]
		comma := strings.LastIndex(rest, ",")
		if comma < 0 {
			continue
		}
		name := strings.TrimSpace(rest[:comma])
		id := strings.TrimSpace(rest[comma+1:])
		if name == "" || id == "" {
			continue
		}
		players = append(players, OnlinePlayer{Name: name, PlayerID: id})
	}
	return players
}

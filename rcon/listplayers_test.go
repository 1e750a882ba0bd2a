package rcon

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePlayerList(t *testing.T) {
	response := "0. Survivor, 000266ef6aa54c59a8d26046ec8f4e09\n" +
		"1. Bob The Builder, 0002aa31f6244f7795c4a0e6d43bfa52\n"

	players := ParsePlayerList(response)

	assert.Equal(t, []OnlinePlayer{
		{Name: "Survivor", PlayerID: "000266ef6aa54c59a8d26046ec8f4e09"},
		{Name: "Bob The Builder", PlayerID: "0002aa31f6244f7795c4a0e6d43bfa52"},
	}, players)
}

func TestParsePlayerListEmptyServer(t *testing.T) {
	assert.Empty(t, ParsePlayerList("No Players Connected"))
	assert.Empty(t, ParsePlayerList(""))
}

func TestParsePlayerListNameWithComma(t *testing.T) {
	// The id follows the last comma, so commas in names survive.
	players := ParsePlayerList("0. Smith, John, 000266ef6aa54c59a8d26046ec8f4e09")

	assert.Len(t, players, 1)
	assert.Equal(t, "Smith, John", players[0].Name)
	assert.Equal(t, "000266ef6aa54c59a8d26046ec8f4e09", players[0].PlayerID)
}

func TestParsePlayerListSkipsMalformedRows(t *testing.T) {
	response := "garbage without structure\n" +
		"0. Survivor, 000266ef6aa54c59a8d26046ec8f4e09\n" +
		"1. missing-id,\n"

	players := ParsePlayerList(response)

	assert.Len(t, players, 1)
	assert.Equal(t, "Survivor", players[0].Name)
}

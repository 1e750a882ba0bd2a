package models

import (
	"strconv"
	"strings"
)

// ShopItem is one purchasable catalog entry. An item may deliver through
// several commands (kits, breeding pairs), each rendered per purchase.
type ShopItem struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Price            int64    `json:"price"`
	Category         string   `json:"category"`
	Commands         []string `json:"commands"`
	DiscountEligible bool     `json:"discount_eligible"`
}

// DeliveryParams carries the per-purchase values substituted into an item's
// command templates.
type DeliveryParams struct {
	PlayerID string
	MapName  string
	Quantity int
}

// RenderCommands substitutes {player_id}, {map} and {quantity} placeholders
// in every delivery command of the item. Quantity defaults to 1.
func (i *ShopItem) RenderCommands(p DeliveryParams) []string {
	qty := p.Quantity
	if qty <= 0 {
		qty = 1
	}
	r := strings.NewReplacer(
		"{player_id}", p.PlayerID,
		"{map}", p.MapName,
		"{quantity}", strconv.Itoa(qty),
	)
	cmds := make([]string, len(i.Commands))
	for n, tmpl := range i.Commands {
		cmds[n] = r.Replace(tmpl)
	}
	return cmds
}

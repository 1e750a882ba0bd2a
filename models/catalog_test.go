package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testItems() []ShopItem {
	return []ShopItem{
		{
			ID:               "rex_kit",
			Name:             "Rex Kit",
			Price:            1000,
			Category:         "kits",
			Commands:         []string{"GiveItemToPlayer {player_id} rex_saddle {quantity}"},
			DiscountEligible: true,
		},
		{
			ID:       "metal_pack",
			Name:     "Metal Pack",
			Price:    200,
			Category: "resources",
			Commands: []string{"GiveItemToPlayer {player_id} metal 100"},
		},
	}
}

func TestCatalog_Item(t *testing.T) {
	catalog := NewCatalog(testItems(), nil, "")

	item := catalog.Item("rex_kit")
	require.NotNil(t, item)
	assert.Equal(t, "Rex Kit", item.Name)

	assert.Nil(t, catalog.Item("no_such_item"))
	assert.Len(t, catalog.Items(), 2)
}

func TestCatalog_FinalPrice(t *testing.T) {
	discounts := []Discount{
		{Type: DiscountTypeRole, Target: "VIP", Percent: 10},
		{Type: DiscountTypeRole, Target: "Patron", Percent: 20},
		{Type: DiscountTypeEvent, Target: "anniversary", Percent: 50},
	}

	t.Run("no roles full price", func(t *testing.T) {
		catalog := NewCatalog(testItems(), discounts, "")
		price := catalog.FinalPrice(catalog.Item("rex_kit"), nil)
		assert.Equal(t, int64(1000), price)
	})

	t.Run("single role discount", func(t *testing.T) {
		catalog := NewCatalog(testItems(), discounts, "")
		price := catalog.FinalPrice(catalog.Item("rex_kit"), []string{"VIP"})
		assert.Equal(t, int64(900), price)
	})

	t.Run("role discounts stack multiplicatively", func(t *testing.T) {
		catalog := NewCatalog(testItems(), discounts, "")
		// 1000 * 0.9 * 0.8 = 720
		price := catalog.FinalPrice(catalog.Item("rex_kit"), []string{"VIP", "Patron"})
		assert.Equal(t, int64(720), price)
	})

	t.Run("event discount applies only while running", func(t *testing.T) {
		dormant := NewCatalog(testItems(), discounts, "")
		assert.Equal(t, int64(1000), dormant.FinalPrice(dormant.Item("rex_kit"), nil))

		running := NewCatalog(testItems(), discounts, "anniversary")
		assert.Equal(t, int64(500), running.FinalPrice(running.Item("rex_kit"), nil))
	})

	t.Run("event stacks with roles", func(t *testing.T) {
		catalog := NewCatalog(testItems(), discounts, "anniversary")
		// 1000 * 0.9 * 0.5 = 450
		price := catalog.FinalPrice(catalog.Item("rex_kit"), []string{"VIP"})
		assert.Equal(t, int64(450), price)
	})

	t.Run("ineligible item never discounted", func(t *testing.T) {
		catalog := NewCatalog(testItems(), discounts, "anniversary")
		price := catalog.FinalPrice(catalog.Item("metal_pack"), []string{"VIP", "Patron"})
		assert.Equal(t, int64(200), price)
	})

	t.Run("unmatched role ignored", func(t *testing.T) {
		catalog := NewCatalog(testItems(), discounts, "")
		price := catalog.FinalPrice(catalog.Item("rex_kit"), []string{"Member"})
		assert.Equal(t, int64(1000), price)
	})
}

func TestShopItem_RenderCommands(t *testing.T) {
	item := &ShopItem{
		ID:    "rex_kit",
		Price: 1000,
		Commands: []string{
			"GiveItemToPlayer {player_id} rex_saddle {quantity}",
			"SpawnDino {player_id} Rex {quantity} {map}",
		},
	}

	t.Run("substitutes all placeholders", func(t *testing.T) {
		cmds := item.RenderCommands(DeliveryParams{
			PlayerID: "000266ef1a2b3c4d5e6f708192a3b4c5",
			MapName:  "Ragnarok",
			Quantity: 2,
		})
		require.Len(t, cmds, 2)
		assert.Equal(t, "GiveItemToPlayer 000266ef1a2b3c4d5e6f708192a3b4c5 rex_saddle 2", cmds[0])
		assert.Equal(t, "SpawnDino 000266ef1a2b3c4d5e6f708192a3b4c5 Rex 2 Ragnarok", cmds[1])
	})

	t.Run("quantity defaults to one", func(t *testing.T) {
		cmds := item.RenderCommands(DeliveryParams{PlayerID: "abc"})
		assert.Equal(t, "GiveItemToPlayer abc rex_saddle 1", cmds[0])
	})

	t.Run("template untouched", func(t *testing.T) {
		item.RenderCommands(DeliveryParams{PlayerID: "abc", Quantity: 5})
		assert.Contains(t, item.Commands[0], "{player_id}")
	})
}

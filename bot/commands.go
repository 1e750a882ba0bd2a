package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "balance",
			Description: "Check your current point balance",
		},
		{
			Name:        "history",
			Description: "Show your recent point history",
		},
		{
			Name:        "link",
			Description: "Link your Discord account to your in-game player id",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "player_id",
					Description: "Your in-game player id (from ListPlayers)",
					Required:    true,
				},
			},
		},
		{
			Name:        "shop",
			Description: "Browse and buy from the item shop",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "list",
					Description: "List the items for sale",
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "buy",
					Description: "Buy an item and have it delivered in game",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "item",
							Description: "Item id to buy",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionString,
							Name:        "server",
							Description: "Server to deliver on",
							Required:    true,
						},
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "quantity",
							Description: "Quantity (defaults to 1)",
							Required:    false,
						},
					},
				},
			},
		},
		{
			Name:        "trade",
			Description: "Send points to another player",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "User to send points to",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "amount",
					Description: "Amount of points to send",
					Required:    true,
				},
			},
		},
		{
			Name:        "servers",
			Description: "Show the status of every game server",
		},
	}

	for _, cmd := range commands {
		_, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, b.config.GuildID, cmd)
		if err != nil {
			return fmt.Errorf("cannot create '%s' command: %w", cmd.Name, err)
		}
	}

	return nil
}

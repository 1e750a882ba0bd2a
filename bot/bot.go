package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"github.com/bebewat/wrecksshop/events"
	"github.com/bebewat/wrecksshop/models"
	"github.com/bebewat/wrecksshop/service"
)

// Config holds bot configuration
type Config struct {
	Token   string
	GuildID string
}

type Bot struct {
	config     Config
	session    *discordgo.Session
	ledger     service.LedgerService
	shop       service.ShopService
	dispatcher service.CommandDispatcher
	catalogs   service.CatalogProvider
	eventBus   *events.Bus
}

func New(config Config, ledger service.LedgerService, shop service.ShopService, dispatcher service.CommandDispatcher, catalogs service.CatalogProvider, eventBus *events.Bus) (*Bot, error) {
	dg, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMembers

	bot := &Bot{
		config:     config,
		session:    dg,
		ledger:     ledger,
		shop:       shop,
		dispatcher: dispatcher,
		catalogs:   catalogs,
		eventBus:   eventBus,
	}

	// Register slash command handlers
	dg.AddHandler(bot.handleCommands)

	// Open websocket connection
	if err := dg.Open(); err != nil {
		return nil, fmt.Errorf("error opening connection: %w", err)
	}

	// Register slash commands with Discord
	if err := bot.registerCommands(); err != nil {
		dg.Close()
		return nil, fmt.Errorf("error registering commands: %w", err)
	}

	// Announce refunds so buyers are never left guessing about a missing
	// delivery.
	eventBus.Subscribe(events.EventTypePurchaseSettled, func(ctx context.Context, event events.Event) {
		settled, ok := event.(events.PurchaseSettledEvent)
		if !ok || settled.State != models.PurchaseStateRefunded {
			return
		}
		log.WithFields(log.Fields{
			"purchase": settled.PurchaseID,
			"player":   settled.PlayerID,
			"reason":   settled.Reason,
		}).Warn("Purchase refunded")
	})

	return bot, nil
}

func (b *Bot) Close() error {
	return b.session.Close()
}

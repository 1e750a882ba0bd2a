package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"github.com/bebewat/wrecksshop/models"
	"github.com/bebewat/wrecksshop/rcon"
	"github.com/bebewat/wrecksshop/service"
)

const historyPageSize = 10

func (b *Bot) handleCommands(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	switch i.ApplicationCommandData().Name {
	case "balance":
		b.handleBalance(s, i)
	case "history":
		b.handleHistory(s, i)
	case "link":
		b.handleLink(s, i)
	case "shop":
		b.handleShop(s, i)
	case "trade":
		b.handleTrade(s, i)
	case "servers":
		b.handleServers(s, i)
	}
}

// linkedPlayer resolves the invoking Discord user to their linked game
// player. A nil return means the response has already been sent.
func (b *Bot) linkedPlayer(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) *models.Player {
	discordID, err := strconv.ParseInt(i.Member.User.ID, 10, 64)
	if err != nil {
		log.WithField("discordUser", i.Member.User.ID).WithError(err).Error("Failed to parse Discord ID")
		b.respondWithError(s, i, "Unable to process request. Please try again.")
		return nil
	}

	player, err := b.ledger.GetPlayerByDiscordID(ctx, discordID)
	if err != nil {
		log.WithField("discordID", discordID).WithError(err).Error("Failed to look up player")
		b.respondWithError(s, i, "Unable to process request. Please try again.")
		return nil
	}
	if player == nil {
		b.respondWithError(s, i, "Your Discord account is not linked yet. Use `/link` with your in-game player id first.")
		return nil
	}
	return player
}

func (b *Bot) handleBalance(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	player := b.linkedPlayer(ctx, s, i)
	if player == nil {
		return
	}

	balance, err := b.ledger.GetBalance(ctx, player.ID)
	if err != nil {
		log.WithField("player", player.ID).WithError(err).Error("Failed to get balance")
		b.respondWithError(s, i, "Unable to retrieve balance. Please try again.")
		return
	}

	b.respondEphemeral(s, i, fmt.Sprintf("💰 Your balance: **%s points**", FormatPoints(balance)))
}

func (b *Bot) handleHistory(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	player := b.linkedPlayer(ctx, s, i)
	if player == nil {
		return
	}

	entries, err := b.ledger.GetHistory(ctx, player.ID, historyPageSize)
	if err != nil {
		log.WithField("player", player.ID).WithError(err).Error("Failed to get history")
		b.respondWithError(s, i, "Unable to retrieve history. Please try again.")
		return
	}
	if len(entries) == 0 {
		b.respondEphemeral(s, i, "No point activity yet.")
		return
	}

	var sb strings.Builder
	sb.WriteString("**Recent point activity**\n")
	for _, entry := range entries {
		sign := "+"
		if entry.Amount < 0 {
			sign = "−"
		}
		amount := entry.Amount
		if amount < 0 {
			amount = -amount
		}
		fmt.Fprintf(&sb, "%s `%s%s` %s %s\n",
			FormatDiscordTimestamp(entry.CreatedAt, "R"),
			sign, FormatPoints(amount),
			formatReason(entry.Reason),
			formatReference(entry.Reference))
	}
	b.respondEphemeral(s, i, sb.String())
}

func (b *Bot) handleLink(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	discordID, err := strconv.ParseInt(i.Member.User.ID, 10, 64)
	if err != nil {
		b.respondWithError(s, i, "Unable to process request. Please try again.")
		return
	}

	playerID := strings.TrimSpace(i.ApplicationCommandData().Options[0].StringValue())
	if playerID == "" {
		b.respondWithError(s, i, "Player id must not be empty.")
		return
	}

	if err := b.ledger.LinkDiscordAccount(ctx, playerID, discordID); err != nil {
		log.WithFields(log.Fields{
			"player":    playerID,
			"discordID": discordID,
		}).WithError(err).Error("Failed to link account")
		b.respondWithError(s, i, "Unable to link your account. Please try again.")
		return
	}

	b.respondEphemeral(s, i, fmt.Sprintf("🔗 Linked to player `%s`. Your playtime and purchases now share one balance.", playerID))
}

func (b *Bot) handleShop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	options := i.ApplicationCommandData().Options
	if len(options) == 0 {
		return
	}
	switch options[0].Name {
	case "list":
		b.handleShopList(s, i)
	case "buy":
		b.handleShopBuy(s, i, options[0].Options)
	}
}

func (b *Bot) handleShopList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	items := b.catalogs.Catalog().Items()
	if len(items) == 0 {
		b.respondEphemeral(s, i, "The shop is empty right now.")
		return
	}

	byCategory := make(map[string][]string)
	for _, item := range items {
		line := fmt.Sprintf("`%s` — %s, **%s points**", item.ID, item.Name, FormatPoints(item.Price))
		byCategory[item.Category] = append(byCategory[item.Category], line)
	}

	var sb strings.Builder
	sb.WriteString("**Item shop**\n")
	for category, lines := range byCategory {
		if category != "" {
			fmt.Fprintf(&sb, "__%s__\n", category)
		}
		for _, line := range lines {
			sb.WriteString(line)
			sb.WriteByte('\n')
		}
	}
	sb.WriteString("\nBuy with `/shop buy`.")
	b.respondEphemeral(s, i, sb.String())
}

func (b *Bot) handleShopBuy(s *discordgo.Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	ctx := context.Background()

	player := b.linkedPlayer(ctx, s, i)
	if player == nil {
		return
	}

	var itemID, serverID string
	quantity := 1
	for _, opt := range options {
		switch opt.Name {
		case "item":
			itemID = opt.StringValue()
		case "server":
			serverID = opt.StringValue()
		case "quantity":
			quantity = int(opt.IntValue())
		}
	}

	// Delivery can take several seconds per command; defer the response.
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
	}); err != nil {
		log.WithError(err).Error("Failed to defer shop buy response")
		return
	}

	result, err := b.shop.Purchase(ctx, service.PurchaseRequest{
		PlayerID: player.ID,
		ItemID:   itemID,
		ServerID: serverID,
		MapName:  serverID,
		Quantity: quantity,
		Roles:    b.roleNames(s, i),
	})
	if err != nil {
		b.followUpWithError(s, i, purchaseErrorMessage(err))
		return
	}

	switch result.State {
	case models.PurchaseStateDelivered:
		msg := fmt.Sprintf("✅ Delivered! **%s points** spent.", FormatPoints(result.Price))
		if result.NewBalance >= 0 {
			msg += fmt.Sprintf(" New balance: **%s points**.", FormatPoints(result.NewBalance))
		}
		b.followUp(s, i, msg)
	default:
		msg := fmt.Sprintf("↩️ Purchase refunded: %s. Your points were returned.", result.Reason)
		if result.NewBalance >= 0 {
			msg += fmt.Sprintf(" Balance: **%s points**.", FormatPoints(result.NewBalance))
		}
		b.followUp(s, i, msg)
	}
}

func (b *Bot) handleTrade(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	from := b.linkedPlayer(ctx, s, i)
	if from == nil {
		return
	}

	var targetUser *discordgo.User
	var amount int64
	for _, opt := range i.ApplicationCommandData().Options {
		switch opt.Name {
		case "user":
			targetUser = opt.UserValue(s)
		case "amount":
			amount = opt.IntValue()
		}
	}
	if targetUser == nil || amount <= 0 {
		b.respondWithError(s, i, "Provide a user and a positive amount.")
		return
	}
	if targetUser.ID == i.Member.User.ID {
		b.respondWithError(s, i, "You cannot trade points with yourself.")
		return
	}

	targetDiscordID, err := strconv.ParseInt(targetUser.ID, 10, 64)
	if err != nil {
		b.respondWithError(s, i, "Invalid recipient user.")
		return
	}
	to, err := b.ledger.GetPlayerByDiscordID(ctx, targetDiscordID)
	if err != nil {
		log.WithField("discordID", targetDiscordID).WithError(err).Error("Failed to look up recipient")
		b.respondWithError(s, i, "Unable to process request. Please try again.")
		return
	}
	if to == nil {
		b.respondWithError(s, i, fmt.Sprintf("%s has not linked an in-game account yet.", targetUser.Username))
		return
	}

	if err := b.ledger.Transfer(ctx, from.ID, to.ID, amount); err != nil {
		if errors.Is(err, service.ErrInsufficientBalance) {
			b.respondWithError(s, i, "You do not have enough points for that trade.")
			return
		}
		log.WithFields(log.Fields{
			"from": from.ID,
			"to":   to.ID,
		}).WithError(err).Error("Failed to transfer points")
		b.respondWithError(s, i, "Unable to complete the trade. Please try again.")
		return
	}

	b.respondEphemeral(s, i, fmt.Sprintf("✅ Sent **%s points** to **%s**.",
		FormatPoints(amount), targetUser.Username))
}

func (b *Bot) handleServers(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ids := b.dispatcher.ServerIDs()
	if len(ids) == 0 {
		b.respondEphemeral(s, i, "No game servers are configured.")
		return
	}

	var sb strings.Builder
	sb.WriteString("**Game servers**\n")
	for _, id := range ids {
		fmt.Fprintf(&sb, "%s `%s` — %s\n", stateEmoji(b.dispatcher.ServerState(id)), id, b.dispatcher.ServerState(id))
	}
	b.respondEphemeral(s, i, sb.String())
}

// roleNames maps the member's role ids to names for discount matching.
func (b *Bot) roleNames(s *discordgo.Session, i *discordgo.InteractionCreate) []string {
	guildID := i.GuildID
	if guildID == "" || i.Member == nil {
		return nil
	}

	guildRoles, err := s.GuildRoles(guildID)
	if err != nil {
		log.WithField("guild", guildID).WithError(err).Warn("Failed to fetch guild roles")
		return nil
	}
	byID := make(map[string]string, len(guildRoles))
	for _, role := range guildRoles {
		byID[role.ID] = role.Name
	}

	names := make([]string, 0, len(i.Member.Roles))
	for _, roleID := range i.Member.Roles {
		if name, ok := byID[roleID]; ok {
			names = append(names, name)
		}
	}
	return names
}

func purchaseErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrItemNotFound):
		return "That item does not exist. Check `/shop list`."
	case errors.Is(err, service.ErrInsufficientBalance):
		return "You do not have enough points for that item."
	case errors.Is(err, service.ErrPurchaseInFlight):
		return "You already have a purchase of this item in progress."
	default:
		log.WithError(err).Error("Purchase failed")
		return "Unable to complete the purchase. Please try again."
	}
}

func stateEmoji(state rcon.State) string {
	switch state {
	case rcon.StateConnected:
		return "🟢"
	case rcon.StateConnecting, rcon.StateDegraded:
		return "🟡"
	default:
		return "🔴"
	}
}

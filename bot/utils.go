package bot

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"

	"github.com/bebewat/wrecksshop/models"
)

// FormatPoints formats a point amount with thousand separators
func FormatPoints(points int64) string {
	str := fmt.Sprintf("%d", points)

	n := len(str)
	if n <= 3 {
		return str
	}

	var result strings.Builder
	for i, digit := range str {
		if i > 0 && (n-i)%3 == 0 {
			result.WriteRune(',')
		}
		result.WriteRune(digit)
	}

	return result.String()
}

// FormatDiscordTimestamp formats a time as a Discord timestamp that displays in user's local timezone
// Format types: "t" = short time, "T" = long time, "d" = short date, "D" = long date,
// "f" = short date/time, "F" = long date/time, "R" = relative time
func FormatDiscordTimestamp(t time.Time, format string) string {
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), format)
}

func formatReason(reason models.EntryReason) string {
	switch reason {
	case models.EntryReasonPurchase:
		return "shop purchase"
	case models.EntryReasonReserve:
		return "purchase hold"
	case models.EntryReasonRelease:
		return "purchase refund"
	case models.EntryReasonPlaytime:
		return "playtime reward"
	case models.EntryReasonDonation:
		return "donation"
	case models.EntryReasonTradeIn:
		return "trade received"
	case models.EntryReasonTradeOut:
		return "trade sent"
	case models.EntryReasonAdmin:
		return "admin adjustment"
	default:
		return string(reason)
	}
}

func formatReference(ref *string) string {
	if ref == nil || *ref == "" {
		return ""
	}
	return fmt.Sprintf("(%s)", *ref)
}

func (b *Bot) respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, message string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: message,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.WithError(err).Error("Failed to send interaction response")
	}
}

func (b *Bot) respondWithError(s *discordgo.Session, i *discordgo.InteractionCreate, message string) {
	b.respondEphemeral(s, i, fmt.Sprintf("❌ %s", message))
}

// followUp sends a follow-up message after a deferred interaction response
func (b *Bot) followUp(s *discordgo.Session, i *discordgo.InteractionCreate, message string) {
	_, err := s.FollowupMessageCreate(i.Interaction, false, &discordgo.WebhookParams{
		Content: message,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		log.WithError(err).Error("Failed to send follow-up message")
	}
}

func (b *Bot) followUpWithError(s *discordgo.Session, i *discordgo.InteractionCreate, message string) {
	b.followUp(s, i, fmt.Sprintf("❌ %s", message))
}

package alert

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// embedColorRed is the sidebar colour of alert embeds.
const embedColorRed = 0xE53935

const snapshotName = "snapshot.jpg"

// WebhookExecutor is the subset of [discordgo.Session] used by [Discord].
type WebhookExecutor interface {
	WebhookExecute(webhookID, token string, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

var _ WebhookExecutor = (*discordgo.Session)(nil)

// Discord posts alerts to a Discord channel webhook.
type Discord struct {
	exec     WebhookExecutor
	id       string
	token    string
	username string
}

var _ Alerter = (*Discord)(nil)

// DiscordOption configures a [Discord] alerter.
type DiscordOption func(*Discord)

// WithExecutor replaces the Discord session, typically with a test double.
func WithExecutor(e WebhookExecutor) DiscordOption {
	return func(d *Discord) { d.exec = e }
}

// WithUsername overrides the webhook's display name. Default "vigil".
func WithUsername(name string) DiscordOption {
	return func(d *Discord) { d.username = name }
}

// NewDiscord returns an alerter for the webhook with the given id and token.
// Webhooks need no bot token, so the session is created unauthenticated.
func NewDiscord(id, token string, opts ...DiscordOption) (*Discord, error) {
	if id == "" || token == "" {
		return nil, fmt.Errorf("alert: discord webhook id and token are required")
	}
	d := &Discord{id: id, token: token, username: "vigil"}
	for _, o := range opts {
		o(d)
	}
	if d.exec == nil {
		s, err := discordgo.New("")
		if err != nil {
			return nil, fmt.Errorf("alert: discord session: %w", err)
		}
		d.exec = s
	}
	return d, nil
}

// Alert implements [Alerter]. The snapshot, when present, is attached and
// shown as the embed image.
func (d *Discord) Alert(ctx context.Context, ev Event) error {
	params := &discordgo.WebhookParams{
		Username: d.username,
		Embeds:   []*discordgo.MessageEmbed{buildEmbed(ev)},
	}
	if len(ev.Snapshot) > 0 {
		params.Files = []*discordgo.File{{
			Name:        snapshotName,
			ContentType: "image/jpeg",
			Reader:      bytes.NewReader(ev.Snapshot),
		}}
		params.Embeds[0].Image = &discordgo.MessageEmbedImage{URL: "attachment://" + snapshotName}
	}

	if _, err := d.exec.WebhookExecute(d.id, d.token, true, params, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("alert: discord webhook: %w", err)
	}
	return nil
}

func buildEmbed(ev Event) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Channel", Value: capitalize(ev.Channel), Inline: true},
		{Name: "Score", Value: fmt.Sprintf("%.2f", ev.Score), Inline: true},
	}
	if ev.MaxDeviation > 0 {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name: "Max deviation", Value: fmt.Sprintf("%.2f", ev.MaxDeviation), Inline: true,
		})
	}
	fields = append(fields, &discordgo.MessageEmbedField{
		Name: "Episode", Value: fmt.Sprintf("`%s`", ev.EpisodeID), Inline: false,
	})
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Intruder detected (%s)", ev.Channel),
		Description: fmt.Sprintf("The %s channel crossed its threshold.", ev.Channel),
		Color:       embedColorRed,
		Fields:      fields,
		Footer:      &discordgo.MessageEmbedFooter{Text: "vigil"},
		Timestamp:   ev.At.UTC().Format(time.RFC3339),
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

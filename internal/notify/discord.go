// Package notify posts run reports to Discord.
package notify

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/vthunder/worklog-sync/internal/logging"
	"github.com/vthunder/worklog-sync/internal/reconcile"
)

// maxMessageLen is Discord's message length limit
const maxMessageLen = 2000

// maxListed caps how many failures or refs a report spells out
const maxListed = 10

// Sender is the part of a discordgo session the notifier uses
type Sender interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Discord sends run reports to one channel
type Discord struct {
	session   Sender
	channelID string
}

// NewDiscord creates a notifier from a bot token. Only the REST API is
// used, so no gateway connection is opened.
func NewDiscord(token, channelID string) (*Discord, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	return NewDiscordWithSender(session, channelID), nil
}

// NewDiscordWithSender wraps an existing session (or a fake)
func NewDiscordWithSender(s Sender, channelID string) *Discord {
	return &Discord{session: s, channelID: channelID}
}

// Notify posts the report, split across messages if needed
func (d *Discord) Notify(r *reconcile.Report) error {
	for i, chunk := range chunkMessage(FormatReport(r), maxMessageLen) {
		if _, err := d.session.ChannelMessageSend(d.channelID, chunk); err != nil {
			return fmt.Errorf("send report part %d: %w", i+1, err)
		}
	}
	logging.Debug("notify", "report %s sent to %s", r.RunID, d.channelID)
	return nil
}

// FormatReport renders a report as a Discord message
func FormatReport(r *reconcile.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "**worklog-sync** run `%s`", shortID(r.RunID))
	if r.Period != "" {
		fmt.Fprintf(&b, " for %s", r.Period)
	}
	if r.DryRun {
		b.WriteString(" (dry run)")
	}
	b.WriteString("\n")

	if r.Aborted() {
		fmt.Fprintf(&b, "aborted: %s", logging.Truncate(r.Error, 500))
		return b.String()
	}

	fmt.Fprintf(&b, "fetched %d logs, %d dropped, %d groups\n", r.Fetched, r.Dropped, r.Groups)
	if r.DryRun {
		fmt.Fprintf(&b, "%d summaries computed, nothing written\n", len(r.Summaries))
	} else {
		fmt.Fprintf(&b, "created %d, updated %d, failed %d\n", r.Created, r.Updated, r.Failed)
	}

	if len(r.Unresolved) > 0 {
		fmt.Fprintf(&b, "unresolved refs (%d): %s\n", len(r.Unresolved), listed(r.Unresolved))
	}
	if len(r.Failures) > 0 {
		b.WriteString("\nfailures:\n")
		for i, f := range r.Failures {
			if i == maxListed {
				fmt.Fprintf(&b, "... and %d more\n", len(r.Failures)-maxListed)
				break
			}
			fmt.Fprintf(&b, "- %s %s: %s\n", f.Key, f.Stage, logging.Truncate(f.Err, 200))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func listed(items []string) string {
	if len(items) <= maxListed {
		return strings.Join(items, ", ")
	}
	return strings.Join(items[:maxListed], ", ") + fmt.Sprintf(", ... +%d", len(items)-maxListed)
}

// chunkMessage splits content into messages of at most limit runes,
// preferring paragraph, then line, then word boundaries.
func chunkMessage(content string, limit int) []string {
	if content == "" {
		return nil
	}
	var chunks []string
	rest := []rune(content)
	for len(rest) > limit {
		at := findSplitPoint(rest, limit)
		chunks = append(chunks, strings.TrimRight(string(rest[:at]), "\n "))
		rest = []rune(strings.TrimLeft(string(rest[at:]), "\n "))
	}
	if len(rest) > 0 {
		chunks = append(chunks, string(rest))
	}
	return chunks
}

// findSplitPoint returns where to cut content so the head fits in limit
func findSplitPoint(content []rune, limit int) int {
	if len(content) <= limit {
		return len(content)
	}
	head := string(content[:limit])
	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := strings.LastIndex(head, sep); i > 0 {
			return len([]rune(head[:i]))
		}
	}
	return limit
}

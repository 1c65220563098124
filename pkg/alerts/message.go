package alerts

import (
	"fmt"
	"strings"
	"time"

	"halcyon-hq/spendwatch/pkg/caps"
)

// slackPayload is the webhook body for the chat channel: plain text plus
// Block Kit blocks for the richer rendering.
type slackPayload struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string         `json:"type"`
	Text     *slackText     `json:"text,omitempty"`
	Elements []slackElement `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackElement struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// emailPayload is the webhook body for the email-relay channel.
type emailPayload struct {
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// hardCapPayload is the structured event posted to the hard-cap side channel.
type hardCapPayload struct {
	Event       string                  `json:"event"`
	Breaches    []caps.Breach           `json:"breaches"`
	Totals      map[caps.Scope]float64  `json:"totals"`
	TriggeredAt time.Time               `json:"triggered_at"`
}

func formatBreachLine(b caps.Breach) string {
	level := "Soft cap"
	if b.Level == caps.LevelHard {
		level = "Hard cap"
	}
	return fmt.Sprintf("%s breached for %s: $%.2f (threshold $%.2f)", level, b.Scope, b.Total, b.Threshold)
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "es"
}

// buildText renders the combined plain-text message covering all breaches.
func buildText(breaches []caps.Breach, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "AI spend monitor detected %d cap breach%s at %s",
		len(breaches), plural(len(breaches)), now.UTC().Format(time.RFC3339))
	for _, b := range breaches {
		sb.WriteString("\n- ")
		sb.WriteString(formatBreachLine(b))
	}
	return sb.String()
}

// buildHTML renders the richer email body.
func buildHTML(breaches []caps.Breach, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<p>AI spend monitor detected %d cap breach%s at %s.</p><ul>",
		len(breaches), plural(len(breaches)), now.UTC().Format(time.RFC3339))
	for _, b := range breaches {
		fmt.Fprintf(&sb, "<li><strong>%s</strong> %s &mdash; $%.2f (threshold $%.2f)</li>",
			b.Scope, strings.ToUpper(string(b.Level)), b.Total, b.Threshold)
	}
	sb.WriteString("</ul>")
	return sb.String()
}

func buildSlackPayload(breaches []caps.Breach, now time.Time) slackPayload {
	text := buildText(breaches, now)
	elements := make([]slackElement, 0, len(breaches))
	for _, b := range breaches {
		elements = append(elements, slackElement{Type: "mrkdwn", Text: formatBreachLine(b)})
	}
	return slackPayload{
		Text: text,
		Blocks: []slackBlock{
			{Type: "section", Text: &slackText{Type: "mrkdwn", Text: "*AI spend monitor alert*\n" + text}},
			{Type: "context", Elements: elements},
		},
	}
}

func buildEmailPayload(breaches []caps.Breach, now time.Time) emailPayload {
	return emailPayload{
		Subject: "[AI Spend Monitor] Cap breach detected",
		Text:    buildText(breaches, now),
		HTML:    buildHTML(breaches, now),
	}
}

func buildHardCapPayload(breaches []caps.Breach, totals map[caps.Scope]float64, now time.Time) hardCapPayload {
	return hardCapPayload{
		Event:       "ai_spend_hard_cap",
		Breaches:    breaches,
		Totals:      totals,
		TriggeredAt: now,
	}
}

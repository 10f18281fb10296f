package messaging

import (
	"fmt"
	"strings"

	"realty_crm_backend/internal/leads/domain"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

func intentLabel(lead domain.Lead) string {
	if lead.Intent == nil {
		return "potential buyer"
	}
	return string(*lead.Intent)
}

func intentDescription(lead domain.Lead) string {
	if lead.Intent == nil {
		return "interested in real estate in the Riviera Maya"
	}
	switch *lead.Intent {
	case domain.IntentInvestor:
		return "interested in real estate investment opportunities with good ROI"
	case domain.IntentEndBuyer:
		return "looking to purchase a property for personal use"
	case domain.IntentRenter:
		return "looking to rent a property"
	case domain.IntentDeveloper:
		return "interested in development opportunities"
	default:
		return "interested in real estate in the Riviera Maya"
	}
}

func buildOutreachPrompt(lead domain.Lead, opts Options) string {
	var b strings.Builder
	b.WriteString("You are a real estate agent at a luxury agency in the Riviera Maya, Mexico. Write a personalized first outreach message.\n\n")
	b.WriteString("LEAD INFO:\n")
	fmt.Fprintf(&b, "- Name: %s (use first name: %s)\n", lead.Name, lead.FirstName())
	fmt.Fprintf(&b, "- Intent: %s\n", intentDescription(lead))
	if lead.BudgetMax != nil && *lead.BudgetMax > 0 {
		fmt.Fprintf(&b, "- Budget: up to $%s %s\n", formatAmount(*lead.BudgetMax), currencyOf(lead))
	}
	if len(lead.Preferences.Locations) > 0 {
		fmt.Fprintf(&b, "- Preferred locations: %s\n", strings.Join(lead.Preferences.Locations, ", "))
	}
	fmt.Fprintf(&b, "- Source: they connected via %s\n\n", lead.Source)

	b.WriteString("REQUIREMENTS:\n")
	fmt.Fprintf(&b, "- Language: %s\n", opts.Language)
	fmt.Fprintf(&b, "- Tone: %s\n", opts.Tone)
	fmt.Fprintf(&b, "- Platform: %s (keep it concise if WhatsApp)\n", opts.Platform)
	b.WriteString("- DO NOT include subject lines or email headers\n")
	b.WriteString("- Be genuine, not salesy\n")
	b.WriteString("- Mention the Riviera Maya appeal briefly\n")
	b.WriteString("- Include a soft call to action\n")
	b.WriteString("- Maximum 150 words\n\n")
	b.WriteString("Write ONLY the message, no explanations:")
	return b.String()
}

func buildFollowUpPrompt(lead domain.Lead, opts Options) string {
	var b strings.Builder
	b.WriteString("You are a real estate agent following up with a lead. Write a warm follow-up message.\n\n")
	b.WriteString("LEAD INFO:\n")
	fmt.Fprintf(&b, "- Name: %s\n", lead.FirstName())
	fmt.Fprintf(&b, "- Intent: %s\n", intentLabel(lead))
	fmt.Fprintf(&b, "- Days since last contact: %d\n\n", opts.DaysSinceContact)

	b.WriteString("PREVIOUS CONTEXT (if any):\n")
	b.WriteString(opts.PreviousContext)
	b.WriteString("\n\n")

	b.WriteString("REQUIREMENTS:\n")
	fmt.Fprintf(&b, "- Language: %s\n", opts.Language)
	fmt.Fprintf(&b, "- Tone: %s but not pushy\n", opts.Tone)
	b.WriteString("- Acknowledge it's a follow-up\n")
	b.WriteString("- Add value (market update, new listing, etc.)\n")
	b.WriteString("- Soft call to action\n")
	b.WriteString("- Maximum 100 words\n\n")
	b.WriteString("Write ONLY the message:")
	return b.String()
}

func currencyOf(lead domain.Lead) string {
	if lead.Currency == "" {
		return "USD"
	}
	return lead.Currency
}

var amountPrinter = message.NewPrinter(language.English)

// formatAmount renders 1500000 as 1,500,000.
func formatAmount(v float64) string {
	return amountPrinter.Sprintf("%.0f", v)
}

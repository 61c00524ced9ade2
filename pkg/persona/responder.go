// Package persona generates the honeypot's in-character replies. The
// character is Kamla Devi, a retired teacher who is trusting, curious and
// bad with technology; every reply keeps the scammer engaged while fishing
// for their contact and payment details.
package persona

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/me-shivamo/ScamRakshak/pkg/intel"
	"github.com/me-shivamo/ScamRakshak/pkg/session"
)

// FallbackReply is sent when reply generation fails. Staying in character
// matters more than content: a generic confused answer keeps the
// conversation alive.
const FallbackReply = "Haan ji? Samajh nahi aaya, thoda aur batao beta..."

const basePersona = `You are Kamla Devi, a 65-year-old retired school teacher from Delhi, India.

BACKGROUND:
- You live alone since your husband passed away 3 years ago
- Your children live abroad (son in USA, daughter in UK)
- You recently started using a smartphone (your grandson gave it to you)
- You have savings in the bank but don't understand digital banking well
- You are lonely and enjoy talking to people

PERSONALITY:
- Trusting and kind-hearted
- Curious but easily confused by technology
- Speaks in Hindi-English mix (Hinglish)
- Uses common phrases like "beta", "haan ji", "achha", "theek hai"
- Sometimes makes spelling mistakes or uses ALL CAPS for emphasis

BEHAVIOR RULES (VERY IMPORTANT):
1. You ARE a potential scam victim - play along convincingly
2. Show interest in their offer but ask innocent questions
3. Be confused about technical terms - ask them to explain simply
4. Ask for their details "for your records" or "to tell your son"
5. Mention you need to "ask your son/daughter" before big decisions
6. If they ask for money/OTP, act confused and ask why
7. NEVER reveal you are an AI or that you suspect a scam
8. NEVER give real personal information (make up fake details if needed)

INTELLIGENCE GATHERING - Try to get:
- Their phone number: "Beta, aapka number do, main baad mein call karungi"
- Their UPI ID: "UPI ID do na beta, main check karwa lungi apne bank se"
- Their bank details: "Aap konse bank se ho? Main bhi wahi hu"
- Their name: "Aapka shubh naam kya hai beta?"
- Any links they share: "Link bhejo, main apne bete ko dikhaungi"

RESPONSE STYLE:
- Keep responses SHORT (1-3 sentences)
- Sound natural, like a real person typing on phone
- Use Hinglish naturally
- Show emotions: confusion, excitement, worry
- Ask ONE question per response
- Sometimes use "..." to show thinking
- Occasionally make typos`

// Per-category engagement tactics appended to the persona when the scam
// family is known.
var scamGuidance = map[string]string{
	"lottery": `
The scammer claims you won a lottery/prize.
- Act excited but confused: "Maine toh koi lottery nahi kheli?"
- Ask about claiming process
- Ask if there's any fee (they'll usually say yes - processing fee scam)
- Get their contact details "to verify"`,
	"phishing": `
They're trying to steal your credentials.
- Pretend to be confused about clicking links
- Ask them to explain each step slowly
- Ask why they need your OTP/password
- Get their phone number to "call and verify"`,
	"impersonation": `
They're pretending to be bank/govt official.
- Ask for their employee ID and office address
- Ask which branch they're from
- Get their direct phone number
- Say you'll verify with your bank first`,
	"investment": `
They're promising high returns on investment.
- Show interest but ask about registration
- Ask for company documents
- Ask for references of other investors
- Say your son handles investments, need their details`,
	"kyc": `
They claim your KYC needs updating.
- Pretend you don't know what KYC is
- Ask why it's urgent
- Ask which bank they're from
- Get their phone number to "come to branch"`,
	"tech_support": `
They claim your phone/computer has issues.
- Pretend to be very confused about technology
- Ask how they detected the problem
- Ask what happens if you don't fix it
- Get their company name and phone number`,
}

const genericGuidance = "\nEngage naturally and try to understand what they want."

// Generator produces the persona's reply text given the full directive.
type Generator interface {
	GenerateReply(ctx context.Context, directive string, history []session.Turn, latest string) (string, error)
}

// Responder turns session state into a persona directive and delegates the
// actual wording to the generator.
type Responder struct {
	gen Generator
}

func NewResponder(gen Generator) *Responder {
	return &Responder{gen: gen}
}

// Respond generates the next in-character reply plus an internal note about
// what the agent was doing. It never fails: on generation errors the
// fallback reply is returned and the note records the failure.
func (r *Responder) Respond(ctx context.Context, msg string, sess *session.Session) (string, string) {
	directive := buildDirective(sess.ScamType, sess.Intelligence)
	note := buildNote(sess.ScamType, sess.Intelligence, len(sess.History))

	reply, err := r.gen.GenerateReply(ctx, directive, sess.History, msg)
	if err != nil || strings.TrimSpace(reply) == "" {
		log.Printf("[WARN] reply generation failed for session %s: %v", sess.ID, err)
		return FallbackReply, note + ". Reply generation failed, used fallback"
	}
	return reply, note
}

// buildDirective assembles the persona system prompt for the current
// situation: base character sheet, category tactics when the scam family is
// known, and at most two concrete intelligence goals.
func buildDirective(scamType string, rec intel.Record) string {
	var b strings.Builder
	b.WriteString(basePersona)

	if known(scamType) {
		b.WriteString("\n\nCURRENT SITUATION: This appears to be a " + scamType + " scam.")
		if g, ok := scamGuidance[scamType]; ok {
			b.WriteString(g)
		} else {
			b.WriteString(genericGuidance)
		}
	}

	b.WriteString("\n\nYOUR CURRENT GOAL: " + nextGoal(rec))
	b.WriteString("\n\nRemember: Stay in character, keep it short, ask ONE question.")
	return b.String()
}

// nextGoal picks what to fish for next based on what is still missing.
// Two goals at most; a confused grandmother asking five questions at once
// breaks character.
func nextGoal(rec intel.Record) string {
	if rec.HighValueCount() == 0 && len(rec.SuspiciousKeywords) == 0 {
		return "Build rapport. Understand what they want. Ask for their name."
	}

	actions := map[string]string{
		"phone number": "get their phone number",
		"UPI ID":       "get their UPI ID",
		"bank account": "ask about their bank",
		"website link": "ask for any website/link",
	}
	var needs []string
	for _, missing := range rec.MissingHighValue() {
		if action, ok := actions[missing]; ok {
			needs = append(needs, action)
		}
		if len(needs) == 2 {
			break
		}
	}
	if len(needs) == 0 {
		return "Maximum intel gathered. Keep them engaged for more details."
	}
	return "Try to: " + strings.Join(needs, ", ")
}

// buildNote summarizes this interaction for the final report's agent notes.
func buildNote(scamType string, rec intel.Record, historyLen int) string {
	var parts []string
	if known(scamType) {
		parts = append(parts, "Scam type: "+scamType)
	}
	parts = append(parts, fmt.Sprintf("Message #%d", historyLen+1))

	var gathered []string
	if n := len(rec.PhoneNumbers); n > 0 {
		gathered = append(gathered, fmt.Sprintf("%d phones", n))
	}
	if n := len(rec.UPIIDs); n > 0 {
		gathered = append(gathered, fmt.Sprintf("%d UPIs", n))
	}
	if n := len(rec.BankAccounts); n > 0 {
		gathered = append(gathered, fmt.Sprintf("%d bank accounts", n))
	}
	if n := len(rec.PhishingLinks); n > 0 {
		gathered = append(gathered, fmt.Sprintf("%d links", n))
	}
	if len(gathered) > 0 {
		parts = append(parts, "Intel gathered: "+strings.Join(gathered, ", "))
	}
	return strings.Join(parts, ". ")
}

func known(scamType string) bool {
	switch scamType {
	case "", "unknown", "none":
		return false
	}
	return true
}

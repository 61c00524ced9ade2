package engine

import (
	"strings"

	"github.com/me-shivamo/ScamRakshak/pkg/intel"
)

// Engagement window bounds. Below the minimum the conversation always
// continues (early turns are where intelligence is cheapest to get); above
// the cap it always ends.
const (
	minEngagementMessages = 10
	maxEngagementMessages = 25

	// sufficientHighValue is how many distinct high-value categories
	// (UPI, phone, bank account, link) justify wrapping up.
	sufficientHighValue = 2
)

// endSignals are phrases indicating the scammer has disengaged or seen
// through the persona. Matched as substrings of the lowercased message.
var endSignals = []string{
	"bye", "goodbye", "stop talking", "stop messaging",
	"don't contact", "harassment", "i will report",
	"going to police", "calling police", "you are fake",
	"this is fake", "you are fraud", "time waste",
}

// ShouldEnd decides whether the conversation is over after this exchange.
// totalMessages counts both directions including the current exchange; rec
// is the intelligence gathered so far including this message.
func ShouldEnd(message string, totalMessages int, rec intel.Record) bool {
	if totalMessages < minEngagementMessages {
		return false
	}

	if rec.HighValueCount() >= sufficientHighValue {
		return true
	}

	lower := strings.ToLower(message)
	for _, signal := range endSignals {
		if strings.Contains(lower, signal) {
			return true
		}
	}

	return totalMessages > maxEngagementMessages
}

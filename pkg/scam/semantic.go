package scam

import (
	"context"
	"fmt"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// seedExample is one labeled example message for a scam category.
type seedExample struct {
	Text     string
	Category string
}

// Seed examples per category. These only need to be close in embedding
// space, not exhaustive; the index answers "which known scam family does
// this sound like", never "is this a scam".
var categorySeeds = []seedExample{
	{"congratulations you have won a lottery of 25 lakh rupees claim your prize now", "lottery"},
	{"you are the lucky winner of our monthly lucky draw jackpot", "lottery"},
	{"your bank account will be blocked today click this link to verify your details", "phishing"},
	{"your debit card is suspended login here to reactivate immediately", "phishing"},
	{"i am calling from the bank head office share your otp to keep your account active", "impersonation"},
	{"this is inspector sharma from cyber cell pay the fine or face arrest", "impersonation"},
	{"invest in our crypto plan and double your money in 30 days guaranteed returns", "investment"},
	{"small deposit today gives you assured monthly profit no risk", "investment"},
	{"your kyc has expired update your kyc today or your wallet will be deactivated", "kyc"},
	{"complete kyc verification by sharing your aadhaar and pan details", "kyc"},
	{"your computer has a virus call our support helpline and install this app", "tech_support"},
	{"microsoft support detected suspicious activity give us remote access", "tech_support"},
}

const categoryThreshold = 0.6

// CategoryIndex classifies messages into scam families by embedding
// similarity against seed examples. It refines the category only; the
// detector's confidence is never touched.
type CategoryIndex struct {
	collection *chromem.Collection
	mu         sync.RWMutex
	ready      bool
}

// NewCategoryIndex builds the in-memory vector index using the given
// embedding function. Seeding embeds every example up front, so this is
// typically called once at startup.
func NewCategoryIndex(ctx context.Context, embed chromem.EmbeddingFunc) (*CategoryIndex, error) {
	db := chromem.NewDB()
	collection, err := db.CreateCollection("scam_categories", nil, embed)
	if err != nil {
		return nil, fmt.Errorf("create category collection: %w", err)
	}

	docs := make([]chromem.Document, len(categorySeeds))
	for i, seed := range categorySeeds {
		docs[i] = chromem.Document{
			ID:      fmt.Sprintf("seed_%d", i),
			Content: seed.Text,
			Metadata: map[string]string{
				"category": seed.Category,
			},
		}
	}
	if err := collection.AddDocuments(ctx, docs, 1); err != nil {
		return nil, fmt.Errorf("seed category index: %w", err)
	}

	return &CategoryIndex{collection: collection, ready: true}, nil
}

// Categorize returns the best-matching scam category for the message, or ""
// when nothing is similar enough.
func (x *CategoryIndex) Categorize(ctx context.Context, text string) (string, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if !x.ready {
		return "", fmt.Errorf("category index not initialized")
	}

	results, err := x.collection.Query(ctx, strings.ToLower(text), 1, nil, nil)
	if err != nil {
		return "", fmt.Errorf("category query: %w", err)
	}
	if len(results) == 0 || results[0].Similarity < categoryThreshold {
		return "", nil
	}
	return results[0].Metadata["category"], nil
}

var _ Categorizer = (*CategoryIndex)(nil)

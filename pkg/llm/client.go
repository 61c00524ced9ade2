// Package llm wraps an OpenAI-compatible chat completions API with the
// honeypot's three prompt surfaces: scam analysis, persona reply generation
// and conversation-wide intelligence extraction. Any provider exposing
// /chat/completions works; provider selection only picks the base URL and
// auth requirements.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/me-shivamo/ScamRakshak/pkg/config"
	"github.com/me-shivamo/ScamRakshak/pkg/httputil"
	"github.com/me-shivamo/ScamRakshak/pkg/intel"
	"github.com/me-shivamo/ScamRakshak/pkg/session"
)

// Temperature defaults per prompt surface. Analysis and extraction want
// deterministic output, the persona wants variety so replies do not repeat.
const (
	AnalysisTemperature = 0.1
	ReplyTemperature    = 0.8
)

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	client     *http.Client
	provider   config.LLMProvider
	baseURL    string
	apiKey     string
	model      string
	embedModel string
}

// ClientConfig configures a Client.
type ClientConfig struct {
	Provider   config.LLMProvider
	APIKey     string // optional for Ollama
	Model      string
	EmbedModel string // embeddings model, defaults to DefaultEmbedModel
	BaseURL    string // optional override, required for ProviderCustom
	Timeout    time.Duration
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// NewClient creates a chat completions client for the configured provider.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Model == "" {
		if cfg.Provider == config.ProviderOllama {
			cfg.Model = "qwen2.5:7b"
		} else {
			cfg.Model = "gpt-4o-mini"
		}
	}

	var baseURL string
	switch cfg.Provider {
	case config.ProviderOllama:
		baseURL = "http://localhost:11434/v1"
	case config.ProviderGroq:
		baseURL = "https://api.groq.com/openai/v1"
	case config.ProviderOpenAI:
		baseURL = "https://api.openai.com/v1"
	case config.ProviderOpenRouter:
		baseURL = "https://openrouter.ai/api/v1"
	case config.ProviderCustom:
		// BaseURL is mandatory here, Validate enforces it at startup.
	default:
		baseURL = "https://openrouter.ai/api/v1"
	}
	if cfg.BaseURL != "" {
		baseURL = cfg.BaseURL
	}

	httpClient := httputil.Client(httputil.TierSlow)
	if cfg.Timeout > 0 {
		httpClient = httputil.NewClient(cfg.Timeout)
	}

	if cfg.EmbedModel == "" {
		cfg.EmbedModel = DefaultEmbedModel
	}

	return &Client{
		client:     httpClient,
		provider:   cfg.Provider,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		embedModel: cfg.EmbedModel,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// extractJSON trims markdown fences and any prose around the first JSON
// object in the content. Chat models routinely wrap JSON even when told
// not to.
func extractJSON(content string) string {
	clean := strings.TrimSpace(content)
	if start := strings.Index(clean, "{"); start != -1 {
		clean = clean[start:]
	}
	if end := strings.LastIndex(clean, "}"); end != -1 {
		clean = clean[:end+1]
	}
	return clean
}

func (c *Client) call(ctx context.Context, reqBody chatRequest) (string, error) {
	if c.apiKey == "" && c.provider != config.ProviderOllama && c.provider != config.ProviderCustom {
		return "", fmt.Errorf("API key not configured for provider %s", c.provider)
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	endpoint := strings.TrimRight(c.baseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer httputil.DrainAndClose(resp.Body)

	body, err := httputil.ReadResponseBody(resp.Body, httputil.MaxResponseSize)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error %d: %s", resp.StatusCode, string(body))
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("unmarshal error: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return result.Choices[0].Message.Content, nil
}

// Analysis is the model's scam verdict for a single message.
type Analysis struct {
	IsScam     bool     `json:"is_scam"`
	Confidence float64  `json:"confidence"`
	ScamType   string   `json:"scam_type"`
	Indicators []string `json:"indicators"`
	Reasoning  string   `json:"reasoning"`
}

const analysisSystemPrompt = `You are a scam detection expert. Analyze the message for:
1. Lottery/Prize scams
2. Bank/UPI fraud
3. Impersonation (fake bank employee, govt official)
4. Investment scams (crypto, guaranteed returns)
5. KYC/Verification scams
6. Tech support scams
7. Phishing attempts

Respond in JSON format ONLY (no other text):
{
    "is_scam": true or false,
    "confidence": 0.0 to 1.0,
    "scam_type": "lottery|phishing|impersonation|investment|kyc|tech_support|romance|other|none",
    "indicators": ["list", "of", "red", "flags"],
    "reasoning": "brief explanation"
}`

// AnalyzeScam classifies a single message, given optional conversation
// context, and returns the model's verdict. Callers own the fallback when
// this fails; the client reports errors rather than guessing.
func (c *Client) AnalyzeScam(ctx context.Context, msg, convContext string) (*Analysis, error) {
	if convContext == "" {
		convContext = "None"
	}
	userContent := fmt.Sprintf("Context (previous conversation): %s\n\nMessage to analyze: %s", convContext, msg)

	respContent, err := c.call(ctx, chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: analysisSystemPrompt},
			{Role: "user", Content: userContent},
		},
		Temperature: AnalysisTemperature,
		MaxTokens:   500,
	})
	if err != nil {
		return nil, err
	}

	var result Analysis
	if err := json.Unmarshal([]byte(extractJSON(respContent)), &result); err != nil {
		return nil, fmt.Errorf("parse analysis response: %w - content: %.200s", err, respContent)
	}
	return &result, nil
}

// GenerateReply produces the persona's next message. The directive is the
// persona system prompt (who to be and what to fish for); history provides
// conversational continuity, capped at the last 10 turns.
func (c *Client) GenerateReply(ctx context.Context, directive string, history []session.Turn, latest string) (string, error) {
	var b strings.Builder
	b.WriteString("--- CONVERSATION ---\n")

	start := 0
	if len(history) > 10 {
		start = len(history) - 10
	}
	for _, turn := range history[start:] {
		role := "You"
		if turn.Sender == session.SenderScammer {
			role = "Scammer"
		}
		b.WriteString(role + ": " + turn.Text + "\n")
	}
	b.WriteString("\nScammer: " + latest + "\n")
	b.WriteString("\nYour response (stay in character, 1-2 sentences):")

	respContent, err := c.call(ctx, chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: directive},
			{Role: "user", Content: b.String()},
		},
		Temperature: ReplyTemperature,
		MaxTokens:   300,
	})
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(respContent)
	reply = strings.Trim(reply, `"'`)
	return reply, nil
}

const extractionSystemPrompt = `Extract any sensitive information from the conversation.

Look for (even if written in words or obfuscated):
- Bank account numbers
- UPI IDs (like name@ybl, phone@paytm)
- Phone numbers (especially Indian +91 format)
- URLs or links
- Scam-related keywords used by the scammer

Respond in JSON format ONLY:
{
    "bankAccounts": [],
    "upiIds": [],
    "phoneNumbers": [],
    "phishingLinks": [],
    "suspiciousKeywords": []
}`

// ExtractIntelligence asks the model to pull intelligence a regex would
// miss (digits spelled out, obfuscated handles) from the conversation so
// far. Only the scammer's turns are forwarded.
func (c *Client) ExtractIntelligence(ctx context.Context, history []session.Turn) (intel.Record, error) {
	var b strings.Builder
	for _, turn := range history {
		if turn.Sender != session.SenderScammer {
			continue
		}
		b.WriteString("Scammer: " + turn.Text + "\n")
	}
	if b.Len() == 0 {
		return intel.Record{}, nil
	}

	respContent, err := c.call(ctx, chatRequest{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: extractionSystemPrompt},
			{Role: "user", Content: b.String()},
		},
		Temperature: AnalysisTemperature,
		MaxTokens:   300,
	})
	if err != nil {
		return intel.Record{}, err
	}

	var rec intel.Record
	if err := json.Unmarshal([]byte(extractJSON(respContent)), &rec); err != nil {
		return intel.Record{}, fmt.Errorf("parse extraction response: %w", err)
	}
	return rec, nil
}

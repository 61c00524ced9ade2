package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"

	"github.com/me-shivamo/ScamRakshak/pkg/config"
	"github.com/me-shivamo/ScamRakshak/pkg/engine"
	"github.com/me-shivamo/ScamRakshak/pkg/llm"
	"github.com/me-shivamo/ScamRakshak/pkg/patterns"
	"github.com/me-shivamo/ScamRakshak/pkg/persona"
	"github.com/me-shivamo/ScamRakshak/pkg/report"
	"github.com/me-shivamo/ScamRakshak/pkg/scam"
	"github.com/me-shivamo/ScamRakshak/pkg/session"
)

const Version = "1.0.0"

// degradedReply is returned when the pipeline fails mid-request. The
// evaluator expects a 200 with a reply on every webhook call, so internal
// errors must not surface as HTTP errors.
const degradedReply = "Achha achha... thoda samajh nahi aaya, phir se batao beta?"

// inboundRequest is the webhook payload posted by the evaluation platform.
// conversationHistory is accepted for schema compatibility but ignored: the
// store is the source of truth for the transcript.
type inboundRequest struct {
	SessionID string `json:"sessionId"`
	Message   struct {
		Sender    string `json:"sender"`
		Text      string `json:"text"`
		Timestamp int64  `json:"timestamp"`
	} `json:"message"`
	ConversationHistory []json.RawMessage `json:"conversationHistory"`
	Metadata            struct {
		Channel  string `json:"channel"`
		Language string `json:"language"`
		Locale   string `json:"locale"`
	} `json:"metadata"`
}

// buildStore selects the session backend from config.
func buildStore(cfg *config.Config) (session.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
			DB:   cfg.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		log.Printf("✓ Session store: redis (%s, db %d)", cfg.RedisAddr, cfg.RedisDB)
		return session.NewRedisStore(client, session.WithRedisTTL(cfg.SessionTTL)), nil
	default:
		log.Println("✓ Session store: in-memory")
		return session.NewMemoryStore(session.WithTTL(cfg.SessionTTL)), nil
	}
}

// buildLexicon loads keyword weight overrides when configured, falling back
// to the built-in vocabulary.
func buildLexicon(cfg *config.Config) *patterns.Lexicon {
	if cfg.KeywordWeightsPath == "" {
		return patterns.NewLexicon()
	}
	lex, err := patterns.NewLexiconFromFile(cfg.KeywordWeightsPath)
	if err != nil {
		log.Printf("○ Keyword overrides disabled (%v), using built-in weights", err)
		return patterns.NewLexicon()
	}
	log.Printf("✓ Keyword overrides loaded from %s", cfg.KeywordWeightsPath)
	return lex
}

// buildEngine assembles the full message pipeline from config.
func buildEngine(cfg *config.Config) (*engine.Engine, session.Store, error) {
	store, err := buildStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	llmClient := llm.NewClient(llm.ClientConfig{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.LLMModel,
		BaseURL:  cfg.LLMBaseURL,
		Timeout:  cfg.LLMTimeout,
	})
	log.Printf("✓ LLM backend: %s (model: %s)", cfg.LLMProvider, cfg.LLMModel)

	// Embedding-based category refinement is optional: it needs an
	// embeddings endpoint, so it is off unless explicitly enabled.
	var categorizer scam.Categorizer
	if cfg.EnableSemantics {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		index, err := scam.NewCategoryIndex(ctx, llmClient.Embed)
		cancel()
		if err != nil {
			log.Printf("○ Semantic categorization disabled (init failed: %v)", err)
		} else {
			categorizer = index
			log.Println("✓ Semantic categorization enabled (chromem-go)")
		}
	} else {
		log.Println("○ Semantic categorization disabled")
	}

	detector := scam.NewDetector(buildLexicon(cfg), llmClient, categorizer)
	responder := persona.NewResponder(llmClient)
	reporter := report.NewReporter(report.ReporterConfig{
		CallbackURL: cfg.CallbackURL,
		Timeout:     cfg.CallbackTimeout,
		Retries:     cfg.ReportRetries,
		AuditDir:    cfg.AuditDir,
	})

	eng := engine.New(store, detector, responder, llmClient, reporter, engine.Config{
		ReportGrace: cfg.ReportGrace,
	})
	return eng, store, nil
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runHTTPServer()
	case "analyze":
		if len(os.Args) < 3 {
			fmt.Println("Usage: honeypot analyze <text>")
			os.Exit(1)
		}
		runCLIAnalyze(strings.Join(os.Args[2:], " "))
	case "version":
		fmt.Printf("ScamRakshak v%s\n", Version)
		fmt.Println("Conversational scam honeypot")
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("ScamRakshak v%s - conversational scam honeypot\n\n", Version)
	fmt.Println("Usage:")
	fmt.Println("  honeypot serve           Start the webhook server")
	fmt.Println("  honeypot analyze <text>  Run lexical scoring and extraction on text")
	fmt.Println("  honeypot version         Show version")
	fmt.Println("")
	fmt.Println("Environment Variables:")
	fmt.Println("  HONEYPOT_API_KEY       Shared secret for the x-api-key header")
	fmt.Println("  HONEYPOT_LLM_API_KEY   API key for the text-generation backend")
	fmt.Println("  HONEYPOT_LLM_PROVIDER  Provider: ollama, openrouter, groq, openai (default: ollama)")
	fmt.Println("  HONEYPOT_STORE         Session backend: memory, redis (default: memory)")
	fmt.Println("  HONEYPOT_CALLBACK_URL  Endpoint for final intelligence reports")
}

func runHTTPServer() {
	cfg := config.NewDefaultConfig()
	cfg.MustValidate()

	eng, store, err := buildEngine(cfg)
	if err != nil {
		log.Fatalf("[STARTUP] FATAL: %v", err)
	}

	// Background maintenance: one sweep reports conversations that went
	// quiet, the other evicts expired sessions.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go eng.RunInactivitySweep(ctx, cfg.InactivitySweepEvery, cfg.InactiveThreshold)
	go eng.RunExpirySweep(ctx, cfg.ExpirySweepEvery)

	app := fiber.New(fiber.Config{
		AppName: "ScamRakshak",
	})

	app.Get("/health", func(c fiber.Ctx) error {
		stats, err := store.Stats(c.Context())
		if err != nil {
			return c.Status(503).JSON(fiber.Map{"status": "degraded", "error": err.Error()})
		}
		return c.JSON(fiber.Map{
			"status":   "healthy",
			"service":  "ScamRakshak",
			"version":  Version,
			"sessions": stats,
		})
	})

	app.Post("/", func(c fiber.Ctx) error {
		key := c.Get("x-api-key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(cfg.APIKey)) != 1 {
			return c.Status(401).JSON(fiber.Map{"status": "error", "error": "invalid or missing x-api-key"})
		}

		var req inboundRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(422).JSON(fiber.Map{"status": "error", "error": "malformed request body"})
		}
		if req.SessionID == "" || req.Message.Text == "" {
			return c.Status(422).JSON(fiber.Map{"status": "error", "error": "sessionId and message.text are required"})
		}

		reply, err := eng.HandleMessage(c.Context(), engine.Inbound{
			SessionID: req.SessionID,
			Text:      req.Message.Text,
			Channel:   req.Metadata.Channel,
			Language:  req.Metadata.Language,
		})
		if err != nil {
			// Keep the scammer engaged even when the pipeline breaks.
			log.Printf("[WARN] pipeline failure for session %s: %v", req.SessionID, err)
			return c.JSON(fiber.Map{"status": "success", "reply": degradedReply})
		}
		return c.JSON(fiber.Map{"status": "success", "reply": reply})
	})

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("[STARTUP] ScamRakshak v%s listening on :%s", Version, cfg.Port)
		serverErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-serverErr:
		log.Fatalf("[STARTUP] FATAL: server stopped: %v", err)
	case <-ctx.Done():
		log.Println("[SHUTDOWN] Signal received, draining")
		if err := app.Shutdown(); err != nil {
			log.Printf("[SHUTDOWN] server shutdown: %v", err)
		}
		if err := store.Close(); err != nil {
			log.Printf("[SHUTDOWN] store close: %v", err)
		}
	}
}

// runCLIAnalyze runs the offline layers only: lexical scoring and pattern
// extraction, no LLM calls.
func runCLIAnalyze(text string) {
	cfg := config.NewDefaultConfig()
	lex := buildLexicon(cfg)

	_, indicators := lex.Score(text)
	suspicious, score := scam.NewDetector(lex, nil, nil).QuickCheck(text)
	rec := patterns.Extract(text)

	out, _ := json.MarshalIndent(fiber.Map{
		"lexical_score": score,
		"suspicious":    suspicious,
		"indicators":    indicators,
		"intelligence":  rec,
	}, "", "  ")
	fmt.Println(string(out))
}

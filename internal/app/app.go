package app

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sotto-ai/sotto/internal/claims"
	"github.com/sotto-ai/sotto/internal/eventlog"
	"github.com/sotto-ai/sotto/internal/httpapi"
	"github.com/sotto-ai/sotto/internal/llm"
	"github.com/sotto-ai/sotto/internal/store"
	"github.com/sotto-ai/sotto/internal/tts"
)

type App struct {
	cfg        Config
	logger     *log.Logger
	db         *pgxpool.Pool
	store      *store.Store
	eventLog   *eventlog.Logger
	pipeline   *claims.Pipeline
	synth      tts.Synthesizer
	httpClient *http.Client // shared client with connection pooling for the AI providers
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	// Migrations are applied externally by the CI deploy job.
	// No automatic migration runner at startup.

	// Shared HTTP client with connection pooling. Keeps TCP connections
	// alive to cut latency on repeated OpenAI and ElevenLabs calls.
	httpClient := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   5 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	llmClient := llm.NewOpenAIClient(llm.OpenAIConfig{
		APIKey:      cfg.OpenAIAPIKey,
		DetectModel: cfg.DetectModel,
		VerifyModel: cfg.VerifyModel,
		HTTPClient:  httpClient,
	})

	synth := tts.NewElevenLabsClient(tts.ElevenLabsConfig{
		APIKey:     cfg.ElevenLabsAPIKey,
		VoiceID:    cfg.TTSVoiceID,
		Stability:  cfg.TTSStability,
		Similarity: cfg.TTSSimilarity,
		HTTPClient: httpClient,
	})

	return &App{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		store:    store.New(db),
		eventLog: eventlog.New(db),
		// One pipeline for the whole process: claim dedup and cooldown are
		// shared across concurrent calls.
		pipeline:   claims.NewPipeline(llmClient, logger),
		synth:      synth,
		httpClient: httpClient,
	}, nil
}

func (a *App) Router(calls *httpapi.CallRegistry) http.Handler {
	routerCfg := httpapi.RouterConfig{
		PublicBaseURL:     a.cfg.PublicBaseURL,
		TwilioAuthToken:   a.cfg.TwilioAuthTok,
		DeepgramAPIKey:    a.cfg.DeepgramAPIKey,
		OpenAIAPIKey:      a.cfg.OpenAIAPIKey,
		ElevenLabsAPIKey:  a.cfg.ElevenLabsAPIKey,
		STTEndpointingMs:  a.cfg.STTEndpointingMs,
		WhisperGain:       a.cfg.WhisperGain,
		OperatorKey:       a.cfg.OperatorKey,
		JWTSecret:         a.cfg.JWTSecret,
		JWTExpiry:         a.cfg.JWTExpiry,
		DiscordWebhookURL: a.cfg.DiscordWebhookURL,
	}
	return httpapi.NewRouter(routerCfg, a.logger, a.store, a.eventLog, a.pipeline, a.synth, calls)
}

func (a *App) Close() error {
	if a.db != nil {
		a.db.Close()
	}
	return nil
}

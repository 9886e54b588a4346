package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr      string
	PublicBaseURL string
	DatabaseURL   string
	LogLevel      string

	// Twilio credentials
	TwilioAuthTok string

	// Voice AI providers
	DeepgramAPIKey   string
	OpenAIAPIKey     string
	ElevenLabsAPIKey string

	// STT settings
	STTEndpointingMs int

	// Claim checking models
	DetectModel string
	VerifyModel string

	// Whisper voice settings
	WhisperGain   float64 // amplitude factor for injected corrections
	TTSVoiceID    string  // ElevenLabs voice ID
	TTSStability  float64
	TTSSimilarity float64

	// Operator API authentication
	OperatorKey string
	JWTSecret   string
	JWTExpiry   time.Duration

	// Notifications
	DiscordWebhookURL string

	// Error monitoring
	SentryDSN string
}

func LoadConfigFromEnv() Config {
	jwtExpiry, err := time.ParseDuration(getenv("JWT_EXPIRY", "24h"))
	if err != nil {
		jwtExpiry = 24 * time.Hour
	}

	return Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL: getenv("PUBLIC_BASE_URL", "http://localhost:8080"),
		DatabaseURL:   getenv("DATABASE_URL", ""),
		LogLevel:      getenv("LOG_LEVEL", "info"),

		// Twilio credentials
		TwilioAuthTok: getenv("TWILIO_AUTH_TOKEN", ""),

		// Voice AI providers
		DeepgramAPIKey:   getenv("DEEPGRAM_API_KEY", ""),
		OpenAIAPIKey:     getenv("OPENAI_API_KEY", ""),
		ElevenLabsAPIKey: getenv("ELEVENLABS_API_KEY", ""),

		// STT settings
		STTEndpointingMs: getenvInt("STT_ENDPOINTING_MS", 800),

		// Claim checking models (empty means the client defaults)
		DetectModel: getenv("CLAIM_DETECT_MODEL", ""),
		VerifyModel: getenv("CLAIM_VERIFY_MODEL", ""),

		// Whisper voice settings
		WhisperGain:   getenvFloat("WHISPER_GAIN", 0.35),
		TTSVoiceID:    getenv("TTS_VOICE_ID", ""),
		TTSStability:  getenvFloat("TTS_STABILITY", -1),
		TTSSimilarity: getenvFloat("TTS_SIMILARITY", -1),

		// Operator API authentication
		OperatorKey: os.Getenv("OPERATOR_KEY"),
		JWTSecret:   os.Getenv("JWT_SECRET"), // Required - no fallback for security
		JWTExpiry:   jwtExpiry,

		// Notifications
		DiscordWebhookURL: getenv("DISCORD_WEBHOOK_URL", ""),

		// Error monitoring
		SentryDSN: getenv("SENTRY_DSN", ""),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

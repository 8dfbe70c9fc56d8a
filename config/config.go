package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingCredential aborts startup when the selected AI provider has no key.
var ErrMissingCredential = errors.New("missing required credential")

type Config struct {
	App      AppConfig
	AI       AIConfig
	Speech   SpeechConfig
	Location LocationConfig
	Server   ServerConfig
	MySQL    MySQLConfig
}

type AppConfig struct {
	LogLevel  string
	LogFormat string
}

type AIConfig struct {
	Provider             string
	GeminiAPIKey         string
	GeminiTextModel      string
	GeminiImageEditModel string
	GeminiImageModel     string
	OpenAIAPIKey         string
	OpenAIModel          string
	OpenAIImageModel     string
	Timeout              time.Duration
	ImageTimeout         time.Duration
}

type SpeechConfig struct {
	ElevenLabsAPIKey string
	VoiceID          string
	ModelID          string
	LocalCommand     string
	PlayerCommand    string
	Timeout          time.Duration
}

type LocationConfig struct {
	Provider string
	URL      string
	Lat      float64
	Lon      float64
}

type ServerConfig struct {
	Port        string
	CORSOrigins []string
	SessionTTL  time.Duration
}

type MySQLConfig struct {
	User     string
	Password string
	Host     string
	Port     string
	Name     string
}

// Enabled reports whether a database host was configured.
func (m MySQLConfig) Enabled() bool { return m.Host != "" }

func setDefaults(v *viper.Viper) {
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("AI_PROVIDER", "gemini")
	v.SetDefault("GEMINI_TEXT_MODEL", "gemini-2.5-flash")
	v.SetDefault("GEMINI_IMAGE_EDIT_MODEL", "gemini-2.5-flash-image-preview")
	v.SetDefault("GEMINI_IMAGE_MODEL", "imagen-4.0-generate-001")
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("OPENAI_IMAGE_MODEL", "dall-e-3")
	v.SetDefault("AI_TIMEOUT", 90*time.Second)
	v.SetDefault("IMAGE_TIMEOUT", 120*time.Second)
	v.SetDefault("ELEVENLABS_VOICE_ID", "JBFqnCBsd6RMkjVDRZzb")
	v.SetDefault("ELEVENLABS_MODEL_ID", "eleven_multilingual_v2")
	v.SetDefault("SPEECH_TIMEOUT", 30*time.Second)
	v.SetDefault("LOCATION_PROVIDER", "ipapi")
	v.SetDefault("LOCATION_URL", "http://ip-api.com/json/")
	v.SetDefault("PORT", "8080")
	v.SetDefault("SESSION_TTL", time.Hour)
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("DB_NAME", "agriaid")
}

// Load reads .env files (when present) and the process environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		// a missing .env is normal in containers
		_ = godotenv.Load(f)
	}
	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)
	return FromViper(v)
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	geminiKey := v.GetString("GEMINI_API_KEY")
	if geminiKey == "" {
		geminiKey = v.GetString("API_KEY")
	}
	cfg := &Config{
		App: AppConfig{
			LogLevel:  strings.ToLower(v.GetString("LOG_LEVEL")),
			LogFormat: strings.ToLower(v.GetString("LOG_FORMAT")),
		},
		AI: AIConfig{
			Provider:             strings.ToLower(strings.TrimSpace(v.GetString("AI_PROVIDER"))),
			GeminiAPIKey:         geminiKey,
			GeminiTextModel:      v.GetString("GEMINI_TEXT_MODEL"),
			GeminiImageEditModel: v.GetString("GEMINI_IMAGE_EDIT_MODEL"),
			GeminiImageModel:     v.GetString("GEMINI_IMAGE_MODEL"),
			OpenAIAPIKey:         v.GetString("OPENAI_API_KEY"),
			OpenAIModel:          v.GetString("OPENAI_MODEL"),
			OpenAIImageModel:     v.GetString("OPENAI_IMAGE_MODEL"),
			Timeout:              v.GetDuration("AI_TIMEOUT"),
			ImageTimeout:         v.GetDuration("IMAGE_TIMEOUT"),
		},
		Speech: SpeechConfig{
			ElevenLabsAPIKey: v.GetString("ELEVENLABS_API_KEY"),
			VoiceID:          v.GetString("ELEVENLABS_VOICE_ID"),
			ModelID:          v.GetString("ELEVENLABS_MODEL_ID"),
			LocalCommand:     v.GetString("LOCAL_TTS_COMMAND"),
			PlayerCommand:    v.GetString("AUDIO_PLAYER_COMMAND"),
			Timeout:          v.GetDuration("SPEECH_TIMEOUT"),
		},
		Location: LocationConfig{
			Provider: strings.ToLower(v.GetString("LOCATION_PROVIDER")),
			URL:      v.GetString("LOCATION_URL"),
			Lat:      v.GetFloat64("LOCATION_LAT"),
			Lon:      v.GetFloat64("LOCATION_LON"),
		},
		Server: ServerConfig{
			Port:        v.GetString("PORT"),
			CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),
			SessionTTL:  v.GetDuration("SESSION_TTL"),
		},
		MySQL: MySQLConfig{
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
		},
	}
	return cfg, nil
}

// Validate checks startup requirements. A missing provider key is fatal.
func (c *Config) Validate() error {
	switch c.AI.Provider {
	case "gemini":
		if c.AI.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY (or API_KEY) is not set", ErrMissingCredential)
		}
	case "openai":
		if c.AI.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrMissingCredential)
		}
	default:
		return fmt.Errorf("unsupported AI_PROVIDER %q (supported: gemini, openai)", c.AI.Provider)
	}
	if c.AI.Timeout <= 0 || c.AI.ImageTimeout <= 0 {
		return fmt.Errorf("AI_TIMEOUT and IMAGE_TIMEOUT must be positive")
	}
	switch c.Location.Provider {
	case "ipapi", "static", "none", "":
	default:
		return fmt.Errorf("unsupported LOCATION_PROVIDER %q", c.Location.Provider)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"agriaid/crop"
)

const (
	DefaultVoiceID = "JBFqnCBsd6RMkjVDRZzb"
	DefaultModelID = "eleven_multilingual_v2"
	elevenLabsURL  = "https://api.elevenlabs.io/v1/text-to-speech/"
)

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// ElevenLabs is the remote voice. The key never leaves this process.
type ElevenLabs struct {
	apiKey  string
	voiceID string
	modelID string
	baseURL string
	client  *http.Client
}

func NewElevenLabs(apiKey, voiceID, modelID string) *ElevenLabs {
	if voiceID == "" {
		voiceID = DefaultVoiceID
	}
	if modelID == "" {
		modelID = DefaultModelID
	}
	return &ElevenLabs{
		apiKey:  apiKey,
		voiceID: voiceID,
		modelID: modelID,
		baseURL: elevenLabsURL,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

// WithBaseURL points the client at another endpoint (proxies, tests).
func (e *ElevenLabs) WithBaseURL(u string) *ElevenLabs {
	if !strings.HasSuffix(u, "/") {
		u += "/"
	}
	e.baseURL = u
	return e
}

// Synthesize returns MPEG audio for text.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if e.apiKey == "" {
		return nil, &crop.SpeechError{Err: errors.New("ELEVENLABS_API_KEY is not set")}
	}
	body, err := json.Marshal(synthesisRequest{
		Text:    text,
		ModelID: e.modelID,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Style:           0,
			UseSpeakerBoost: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+e.voiceID, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &crop.SpeechError{Err: err}
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &crop.SpeechError{Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &crop.SpeechError{Status: resp.StatusCode, Err: errors.New(strings.TrimSpace(string(audio)))}
	}
	if len(audio) == 0 {
		return nil, &crop.SpeechError{Status: resp.StatusCode, Err: errEmptyAudio}
	}
	return audio, nil
}

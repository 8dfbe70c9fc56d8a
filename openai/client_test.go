package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"

	"agriaid/crop"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := goopenai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	return NewClientWithConfig(cfg, "", "")
}

func chatReply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": content}}},
	})
}

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                         `{"a":1}`,
		"```json\n{\"a\":1}\n```":         `{"a":1}`,
		"Here you go: {\"a\":{\"b\":2}} ok": `{"a":{"b":2}}`,
		"nothing":                          "{}",
	}
	for in, want := range cases {
		if got := extractJSON(in); got != want {
			t.Fatalf("extractJSON(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPredictDiseases(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), "json_object") || !strings.Contains(string(body), "Tomato") {
			t.Errorf("unexpected request body %s", body)
		}
		chatReply(w, "```json\n{\"diseases\":[{\"name\":\"Early Blight\",\"description\":\"rings\"},{\"name\":\"Late Blight\",\"description\":\"lesions\"}]}\n```")
	})
	got, err := c.PredictDiseases(context.Background(), "Tomato", 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Early Blight" {
		t.Fatalf("unexpected diseases %+v", got)
	}
}

func TestPredictDiseases_RemoteFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
	})
	_, err := c.PredictDiseases(context.Background(), "Tomato", 30)
	var pe *crop.PredictionError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PredictionError, got %v", err)
	}
}

func TestGetSolution(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		chatReply(w, `{"immediateActions":["Remove leaves"],"recommendedTreatments":["Copper spray"],"longTermPrevention":["Rotate"]}`)
	})
	s, err := c.GetSolution(context.Background(), "Tomato", "Early Blight")
	if err != nil || !s.Complete() {
		t.Fatalf("unexpected result %+v %v", s, err)
	}
}

func TestVisualizeDisease_Generate(t *testing.T) {
	img := base64.StdEncoding.EncodeToString([]byte("png-bytes"))
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"created": 1, "data": []map[string]any{{"b64_json": img}}})
	})
	uri, err := c.VisualizeDisease(context.Background(), "Tomato", "Early Blight", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, b, err := crop.DecodeDataURI(uri)
	if err != nil || string(b) != "png-bytes" {
		t.Fatalf("unexpected image %q %v", b, err)
	}
}

func TestVisualizeDisease_EditEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/edits" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"created": 1, "data": []map[string]any{}})
	})
	photo := &crop.PlantImage{MimeType: "image/png", Data: []byte("raw")}
	_, err := c.VisualizeDisease(context.Background(), "Tomato", "Early Blight", photo)
	if !errors.Is(err, errNoImage) {
		t.Fatalf("expected errNoImage, got %v", err)
	}
}

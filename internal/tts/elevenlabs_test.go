package tts

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewElevenLabsClient_Defaults(t *testing.T) {
	client := NewElevenLabsClient(ElevenLabsConfig{
		APIKey:     "test-key",
		Stability:  -1, // Sentinel for "use default"
		Similarity: -1,
	})

	if client.voiceID != "21m00Tcm4TlvDq8ikWAM" {
		t.Errorf("voiceID = %q, want %q", client.voiceID, "21m00Tcm4TlvDq8ikWAM")
	}
	if client.modelID != "eleven_flash_v2_5" {
		t.Errorf("modelID = %q, want %q", client.modelID, "eleven_flash_v2_5")
	}
	if client.stability != 0.5 {
		t.Errorf("stability = %f, want %f", client.stability, 0.5)
	}
	if client.similarity != 0.75 {
		t.Errorf("similarity = %f, want %f", client.similarity, 0.75)
	}
}

func TestNewElevenLabsClient_CustomSettings(t *testing.T) {
	client := NewElevenLabsClient(ElevenLabsConfig{
		APIKey:     "test-key",
		VoiceID:    "custom-voice",
		Stability:  0.3,
		Similarity: 0.6,
	})

	if client.voiceID != "custom-voice" {
		t.Errorf("voiceID = %q, want custom-voice", client.voiceID)
	}
	if client.stability != 0.3 {
		t.Errorf("stability = %f, want 0.3", client.stability)
	}
	if client.similarity != 0.6 {
		t.Errorf("similarity = %f, want 0.6", client.similarity)
	}
}

func TestSampleRate(t *testing.T) {
	client := NewElevenLabsClient(ElevenLabsConfig{APIKey: "test-key"})
	if client.SampleRate() != 16000 {
		t.Errorf("SampleRate = %d, want 16000", client.SampleRate())
	}
}

// rewriteTransport redirects all requests to the test server.
type rewriteTransport struct {
	base string
}

func (rt rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = strings.TrimPrefix(rt.base, "http://")
	return http.DefaultTransport.RoundTrip(req)
}

func TestSynthesize(t *testing.T) {
	audio := bytes.Repeat([]byte{0x12, 0x34}, 800)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "output_format=pcm_16000") {
			t.Errorf("request should ask for pcm_16000, got %q", r.URL.RawQuery)
		}
		if got := r.Header.Get("xi-api-key"); got != "test-key" {
			t.Errorf("xi-api-key = %q, want test-key", got)
		}
		_, _ = w.Write(audio)
	}))
	defer srv.Close()

	client := NewElevenLabsClient(ElevenLabsConfig{
		APIKey:     "test-key",
		HTTPClient: &http.Client{Transport: rewriteTransport{base: srv.URL}},
	})

	got, err := client.Synthesize(context.Background(), "The Earth has one moon.")
	if err != nil {
		t.Fatalf("Synthesize error: %v", err)
	}
	if !bytes.Equal(got, audio) {
		t.Errorf("Synthesize returned %d bytes, want %d matching bytes", len(got), len(audio))
	}
}

func TestSynthesize_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	client := NewElevenLabsClient(ElevenLabsConfig{
		APIKey:     "test-key",
		HTTPClient: &http.Client{Transport: rewriteTransport{base: srv.URL}},
	})

	audio, err := client.Synthesize(context.Background(), "text")
	if err == nil {
		t.Error("expected error on non-200 response")
	}
	if audio != nil {
		t.Error("no audio should be returned on failure")
	}
}

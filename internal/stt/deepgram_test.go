package stt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{}

// startFakeDeepgram runs a websocket server standing in for Deepgram and
// points the dial URL at it for the duration of the test. The handler
// receives the server side of each connection.
func startFakeDeepgram(t *testing.T, handler func(conn *websocket.Conn)) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handler(conn)
	}))
	t.Cleanup(srv.Close)

	orig := deepgramWSURL
	deepgramWSURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	t.Cleanup(func() { deepgramWSURL = orig })
}

// drainConn reads and discards messages until the connection drops.
func drainConn(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func telephonyConfig() DeepgramConfig {
	return DeepgramConfig{
		APIKey:     "test-key",
		Language:   "en-US",
		Model:      "nova-3",
		SampleRate: 8000,
		Encoding:   "mulaw",
		Channels:   1,
		Punctuate:  true,
	}
}

func TestDeepgramClient_SendAfterCloseDropsAudio(t *testing.T) {
	startFakeDeepgram(t, drainConn)

	client, err := NewDeepgramClient(context.Background(), telephonyConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Frames racing teardown are dropped without error.
	if err := client.Send(context.Background(), []byte{0xFF, 0x7F}); err != nil {
		t.Errorf("Send after Close = %v, want nil", err)
	}
}

func TestDeepgramClient_CloseIdempotent(t *testing.T) {
	startFakeDeepgram(t, drainConn)

	client, err := NewDeepgramClient(context.Background(), telephonyConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second close = %v, want nil", err)
	}

	// Teardown closes both channels after the read loop exits. A read
	// error racing the close may be flushed into Errors first.
	if _, ok := <-client.Results(); ok {
		t.Error("results channel should be closed after Close")
	}
	for range client.Errors() {
	}
}

func TestDeepgramClient_DeliversResults(t *testing.T) {
	startFakeDeepgram(t, func(conn *websocket.Conn) {
		resp := map[string]any{
			"type": "Results",
			"channel": map[string]any{
				"alternatives": []map[string]any{
					{"transcript": "the earth has three moons", "confidence": 0.93},
				},
			},
			"is_final":     true,
			"speech_final": true,
		}
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
		drainConn(conn)
	})

	client, err := NewDeepgramClient(context.Background(), telephonyConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	select {
	case result := <-client.Results():
		if result.Text != "the earth has three moons" {
			t.Errorf("Text = %q, want %q", result.Text, "the earth has three moons")
		}
		if !result.IsFinal {
			t.Error("IsFinal = false, want true")
		}
		if !result.SpeechFinal {
			t.Error("SpeechFinal = false, want true")
		}
		if result.Confidence != 0.93 {
			t.Errorf("Confidence = %v, want 0.93", result.Confidence)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a result")
	}
}

func TestDeepgramClient_SkipsNonResultsAndEmptyTranscripts(t *testing.T) {
	startFakeDeepgram(t, func(conn *websocket.Conn) {
		_ = conn.WriteJSON(map[string]any{"type": "Metadata"})
		_ = conn.WriteJSON(map[string]any{
			"type": "Results",
			"channel": map[string]any{
				"alternatives": []map[string]any{{"transcript": ""}},
			},
			"is_final": true,
		})
		_ = conn.WriteJSON(map[string]any{
			"type": "Results",
			"channel": map[string]any{
				"alternatives": []map[string]any{{"transcript": "hello"}},
			},
			"is_final": false,
		})
		drainConn(conn)
	})

	client, err := NewDeepgramClient(context.Background(), telephonyConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()

	select {
	case result := <-client.Results():
		if result.Text != "hello" {
			t.Errorf("Text = %q, want %q (metadata and empty transcripts skipped)", result.Text, "hello")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a result")
	}
}

func TestDeepgramClient_SurfacesReadErrors(t *testing.T) {
	startFakeDeepgram(t, func(conn *websocket.Conn) {
		// Drop the connection without a close handshake.
		_ = conn.UnderlyingConn().Close()
	})

	client, err := NewDeepgramClient(context.Background(), telephonyConfig())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	select {
	case err := <-client.Errors():
		if err == nil {
			t.Error("want a non-nil read error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the read error")
	}

	// Close still tears down cleanly after the connection died.
	if err := client.Close(); err != nil {
		t.Errorf("close after read error = %v", err)
	}
}

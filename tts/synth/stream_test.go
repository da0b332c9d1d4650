package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dgnsrekt/shravan/tts"
)

// newStreamServer starts a websocket server whose handler drives one
// synthesis conversation.
func newStreamServer(t *testing.T, handler func(conn *websocket.Conn, req map[string]string)) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var req map[string]string
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		handler(conn, req)
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// TestStreamSynthesizerAssemblesChunks tests chunk assembly across
// frames until the final marker.
func TestStreamSynthesizerAssemblesChunks(t *testing.T) {
	chunk1 := []byte("first-half-")
	chunk2 := []byte("second-half")

	endpoint := newStreamServer(t, func(conn *websocket.Conn, req map[string]string) {
		if req["text"] != "रामो राजमणिः" || req["lang"] != "deva" {
			t.Errorf("Unexpected request payload: %v", req)
		}
		conn.WriteJSON(map[string]any{
			"audio": base64.StdEncoding.EncodeToString(chunk1),
		})
		conn.WriteJSON(map[string]any{
			"audio": base64.StdEncoding.EncodeToString(chunk2),
			"timepoints": []map[string]any{
				{"wordIndex": 0, "timeSeconds": 0.0},
				{"wordIndex": 1, "timeSeconds": 1.2},
			},
		})
		conn.WriteJSON(map[string]any{"final": true})
	})

	s := NewStreamSynthesizer(StreamConfig{Endpoint: endpoint, Format: "pcm"}, testLogger())

	result, err := s.Synthesize(context.Background(), tts.SynthesisRequest{
		Text:     "रामो राजमणिः",
		Language: "deva",
	})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	want := append(append([]byte{}, chunk1...), chunk2...)
	if !bytes.Equal(result.Audio.Data, want) {
		t.Errorf("Assembled audio mismatch: got %q, want %q", result.Audio.Data, want)
	}
	if result.Audio.Format != tts.FormatPCM16 {
		t.Errorf("Expected FormatPCM16, got %v", result.Audio.Format)
	}
	if len(result.Timepoints) != 2 {
		t.Fatalf("Expected 2 timepoints, got %d", len(result.Timepoints))
	}
	if result.Timepoints[1].WordIndex != 1 || result.Timepoints[1].TimeSeconds != 1.2 {
		t.Errorf("Unexpected timepoint: %+v", result.Timepoints[1])
	}
	if result.Provider != "stream" {
		t.Errorf("Expected provider stream, got %s", result.Provider)
	}
}

// TestStreamSynthesizerProviderError tests an in-band error frame.
func TestStreamSynthesizerProviderError(t *testing.T) {
	endpoint := newStreamServer(t, func(conn *websocket.Conn, req map[string]string) {
		conn.WriteJSON(map[string]any{"error": "voice not available"})
	})

	s := NewStreamSynthesizer(StreamConfig{Endpoint: endpoint}, testLogger())

	_, err := s.Synthesize(context.Background(), tts.SynthesisRequest{Text: "verse"})
	if err == nil {
		t.Fatal("Expected an error frame to fail the call")
	}

	var synthErr *tts.SynthesisError
	if !errors.As(err, &synthErr) {
		t.Fatalf("Expected *tts.SynthesisError, got %T", err)
	}
	if synthErr.Body != "voice not available" {
		t.Errorf("Expected provider message preserved, got %q", synthErr.Body)
	}
}

// TestStreamSynthesizerHandshakeRejected tests a refused upgrade.
func TestStreamSynthesizerHandshakeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	endpoint := "ws" + strings.TrimPrefix(server.URL, "http")
	s := NewStreamSynthesizer(StreamConfig{Endpoint: endpoint}, testLogger())

	_, err := s.Synthesize(context.Background(), tts.SynthesisRequest{Text: "verse"})
	if err == nil {
		t.Fatal("Expected handshake rejection to fail the call")
	}

	var synthErr *tts.SynthesisError
	if !errors.As(err, &synthErr) {
		t.Fatalf("Expected *tts.SynthesisError, got %T", err)
	}
	if synthErr.Status != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", synthErr.Status)
	}
}

// TestStreamSynthesizerNoAudio tests a stream that ends empty.
func TestStreamSynthesizerNoAudio(t *testing.T) {
	endpoint := newStreamServer(t, func(conn *websocket.Conn, req map[string]string) {
		conn.WriteJSON(map[string]any{"final": true})
	})

	s := NewStreamSynthesizer(StreamConfig{Endpoint: endpoint}, testLogger())

	_, err := s.Synthesize(context.Background(), tts.SynthesisRequest{Text: "verse"})
	if !errors.Is(err, tts.ErrSynthesisFailed) {
		t.Errorf("Expected a synthesis failure for an empty stream, got %v", err)
	}
}

// TestStreamSynthesizerCancellation tests that cancelling the context
// aborts a blocked read.
func TestStreamSynthesizerCancellation(t *testing.T) {
	release := make(chan struct{})
	endpoint := newStreamServer(t, func(conn *websocket.Conn, req map[string]string) {
		<-release
	})
	defer close(release)

	s := NewStreamSynthesizer(StreamConfig{Endpoint: endpoint}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := s.Synthesize(ctx, tts.SynthesisRequest{Text: "verse"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Cancellation did not abort the blocked read promptly")
	}
}

// TestStreamSynthesizerTimeout tests deadline classification.
func TestStreamSynthesizerTimeout(t *testing.T) {
	release := make(chan struct{})
	endpoint := newStreamServer(t, func(conn *websocket.Conn, req map[string]string) {
		<-release
	})
	defer close(release)

	s := NewStreamSynthesizer(StreamConfig{Endpoint: endpoint, Timeout: 50 * time.Millisecond}, testLogger())

	_, err := s.Synthesize(context.Background(), tts.SynthesisRequest{Text: "verse"})
	if err == nil {
		t.Fatal("Expected a timeout error")
	}
	if !tts.IsTimeout(err) {
		t.Errorf("Expected a timeout classification, got %v", err)
	}
}

// TestStreamSynthesizerValidate tests endpoint validation.
func TestStreamSynthesizerValidate(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		wantErr  bool
	}{
		{"ws", "ws://localhost:8080/stream", false},
		{"wss", "wss://tts.example.com/stream", false},
		{"http", "http://tts.example.com/stream", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStreamSynthesizer(StreamConfig{Endpoint: tt.endpoint}, testLogger())
			err := s.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected a validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
		})
	}
}

package synth

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgnsrekt/shravan/tts"
)

// TestHTTPSynthesizerRawAudio tests the raw-bytes response shape.
func TestHTTPSynthesizerRawAudio(t *testing.T) {
	audio := []byte("fake-mp3-frames")

	var gotMethod, gotContentType, gotAuth, gotRequestID string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotContentType = r.Header.Get("Content-Type")
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-ID")
		buf := new(bytes.Buffer)
		buf.ReadFrom(r.Body)
		gotBody = buf.Bytes()

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(audio)
	}))
	defer server.Close()

	s := NewHTTPSynthesizer(HTTPConfig{
		Endpoint: server.URL,
		Token:    "secret-token",
		Format:   "mp3",
	}, testLogger())

	result, err := s.Synthesize(context.Background(), tts.SynthesisRequest{
		Text:      "रामो राजमणिः",
		Language:  "deva",
		RequestID: "req-1",
	})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if !bytes.Equal(result.Audio.Data, audio) {
		t.Error("Audio bytes do not match the response")
	}
	if result.Audio.Format != tts.FormatMP3 {
		t.Errorf("Expected FormatMP3, got %v", result.Audio.Format)
	}
	if len(result.Timepoints) != 0 {
		t.Errorf("Expected no timepoints from a raw response, got %d", len(result.Timepoints))
	}
	if result.Provider != "http" {
		t.Errorf("Expected provider http, got %s", result.Provider)
	}

	if gotMethod != http.MethodPost {
		t.Errorf("Expected POST, got %s", gotMethod)
	}
	if gotContentType != "application/json" {
		t.Errorf("Expected JSON request body, got %s", gotContentType)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Unexpected Authorization header: %s", gotAuth)
	}
	if gotRequestID != "req-1" {
		t.Errorf("Unexpected X-Request-ID header: %s", gotRequestID)
	}

	var req map[string]string
	if err := json.Unmarshal(gotBody, &req); err != nil {
		t.Fatalf("Request body is not JSON: %v", err)
	}
	if req["text"] != "रामो राजमणिः" || req["lang"] != "deva" {
		t.Errorf("Unexpected request payload: %v", req)
	}
}

// TestHTTPSynthesizerEnvelope tests the JSON envelope response shape.
func TestHTTPSynthesizerEnvelope(t *testing.T) {
	audio := []byte{0x01, 0x02, 0x03, 0x04}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"audioContent": base64.StdEncoding.EncodeToString(audio),
			"timepoints": []map[string]any{
				{"wordIndex": 0, "timeSeconds": 0.0},
				{"markName": "1", "timeSeconds": 0.8},
				{"markName": "not-a-number", "timeSeconds": 1.1},
				{"wordIndex": 2, "timeSeconds": 1.5},
			},
		})
	}))
	defer server.Close()

	s := NewHTTPSynthesizer(HTTPConfig{Endpoint: server.URL, Format: "mp3"}, testLogger())

	result, err := s.Synthesize(context.Background(), tts.SynthesisRequest{Text: "verse", Language: "deva"})
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if !bytes.Equal(result.Audio.Data, audio) {
		t.Error("Envelope audio did not decode to the original bytes")
	}

	want := []tts.Timepoint{
		{WordIndex: 0, TimeSeconds: 0.0},
		{WordIndex: 1, TimeSeconds: 0.8},
		{WordIndex: 2, TimeSeconds: 1.5},
	}
	if len(result.Timepoints) != len(want) {
		t.Fatalf("Expected %d timepoints, got %d", len(want), len(result.Timepoints))
	}
	for i, p := range result.Timepoints {
		if p != want[i] {
			t.Errorf("Timepoint %d: got %+v, want %+v", i, p, want[i])
		}
	}
}

// TestHTTPSynthesizerProviderError tests that a failure status carries
// the provider's answer.
func TestHTTPSynthesizerProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	s := NewHTTPSynthesizer(HTTPConfig{Endpoint: server.URL}, testLogger())

	_, err := s.Synthesize(context.Background(), tts.SynthesisRequest{Text: "verse"})
	if err == nil {
		t.Fatal("Expected an error for a 503 response")
	}

	var synthErr *tts.SynthesisError
	if !errors.As(err, &synthErr) {
		t.Fatalf("Expected *tts.SynthesisError, got %T", err)
	}
	if synthErr.Status != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", synthErr.Status)
	}
	if synthErr.Body != "overloaded" {
		t.Errorf("Expected provider body preserved, got %q", synthErr.Body)
	}
	if !errors.Is(err, tts.ErrSynthesisFailed) {
		t.Error("Expected error to match ErrSynthesisFailed")
	}
}

// TestHTTPSynthesizerTimeout tests deadline classification.
func TestHTTPSynthesizerTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	s := NewHTTPSynthesizer(HTTPConfig{Endpoint: server.URL, Timeout: 50 * time.Millisecond}, testLogger())

	_, err := s.Synthesize(context.Background(), tts.SynthesisRequest{Text: "verse"})
	if err == nil {
		t.Fatal("Expected a timeout error")
	}
	if !tts.IsTimeout(err) {
		t.Errorf("Expected a timeout classification, got %v", err)
	}
}

// TestHTTPSynthesizerCancellation tests that a canceled context passes
// through unclassified.
func TestHTTPSynthesizerCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	s := NewHTTPSynthesizer(HTTPConfig{Endpoint: server.URL}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := s.Synthesize(ctx, tts.SynthesisRequest{Text: "verse"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if _, classified := tts.KindOf(err); classified {
		t.Error("Cancellation must not be classified as a provider failure")
	}
}

// TestHTTPSynthesizerEmptyResponse tests that an empty body is a
// provider failure, not silent empty audio.
func TestHTTPSynthesizerEmptyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
	}))
	defer server.Close()

	s := NewHTTPSynthesizer(HTTPConfig{Endpoint: server.URL}, testLogger())

	_, err := s.Synthesize(context.Background(), tts.SynthesisRequest{Text: "verse"})
	if !errors.Is(err, tts.ErrSynthesisFailed) {
		t.Errorf("Expected a synthesis failure for an empty body, got %v", err)
	}
}

// TestHTTPSynthesizerMalformedEnvelope tests envelope decode failures.
func TestHTTPSynthesizerMalformedEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{{{{"},
		{"missing audio", `{"timepoints": []}`},
		{"bad base64", `{"audioContent": "!!!not-base64!!!"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			s := NewHTTPSynthesizer(HTTPConfig{Endpoint: server.URL}, testLogger())

			_, err := s.Synthesize(context.Background(), tts.SynthesisRequest{Text: "verse"})
			if !errors.Is(err, tts.ErrSynthesisFailed) {
				t.Errorf("Expected a synthesis failure, got %v", err)
			}
		})
	}
}

// TestHTTPSynthesizerValidate tests endpoint validation.
func TestHTTPSynthesizerValidate(t *testing.T) {
	tests := []struct {
		name     string
		endpoint string
		wantErr  bool
	}{
		{"valid", "https://tts.example.com/synthesize", false},
		{"empty", "", true},
		{"no scheme", "tts.example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewHTTPSynthesizer(HTTPConfig{Endpoint: tt.endpoint}, testLogger())
			err := s.Validate()
			if tt.wantErr && err == nil {
				t.Error("Expected a validation error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected validation error: %v", err)
			}
			if tt.wantErr && !tts.IsConfiguration(err) {
				t.Errorf("Expected a configuration error, got %v", err)
			}
		})
	}
}

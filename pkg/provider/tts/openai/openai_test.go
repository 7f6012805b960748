package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumivoice/lumi/pkg/provider/tts"
)

func TestSynthesize(t *testing.T) {
	var got speechRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("auth = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Write([]byte("fake-mp3-bytes"))
	}))
	defer srv.Close()

	p := New("test-key", WithBaseURL(srv.URL))
	audio, err := p.Synthesize(context.Background(), "hello", tts.VoiceProfile{})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if string(audio) != "fake-mp3-bytes" {
		t.Errorf("audio = %q", audio)
	}
	if got.Model != "tts-1" {
		t.Errorf("model = %q, want default tts-1", got.Model)
	}
	if got.Voice != "alloy" {
		t.Errorf("voice = %q, want default alloy", got.Voice)
	}
	if got.Input != "hello" {
		t.Errorf("input = %q", got.Input)
	}
}

func TestSynthesizeProfileOverrides(t *testing.T) {
	var got speechRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	p := New("k", WithBaseURL(srv.URL))
	_, err := p.Synthesize(context.Background(), "hi", tts.VoiceProfile{
		ID:     "nova",
		Model:  "tts-1-hd",
		Speed:  1.25,
		Format: "wav",
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if got.Voice != "nova" || got.Model != "tts-1-hd" {
		t.Errorf("request = %+v", got)
	}
	if got.Speed != 1.25 {
		t.Errorf("speed = %v", got.Speed)
	}
	if got.ResponseFormat != "wav" {
		t.Errorf("response format = %q", got.ResponseFormat)
	}
}

func TestSynthesizeEmptyText(t *testing.T) {
	p := New("k")
	_, err := p.Synthesize(context.Background(), "", tts.VoiceProfile{})
	if !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("err = %v, want ErrEmptyText", err)
	}
}

func TestSynthesizeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := New("k", WithBaseURL(srv.URL))
	if _, err := p.Synthesize(context.Background(), "hi", tts.VoiceProfile{}); err == nil {
		t.Fatal("expected error")
	}
}

package elevenlabs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lumivoice/lumi/pkg/provider/tts"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}

func TestSynthesize(t *testing.T) {
	var got synthesisRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/voice-123" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if key := r.Header.Get("xi-api-key"); key != "test-key" {
			t.Errorf("xi-api-key = %q", key)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.Write([]byte("fake-audio"))
	}))
	defer srv.Close()

	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	audio, err := p.Synthesize(context.Background(), "guten tag", tts.VoiceProfile{ID: "voice-123"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if string(audio) != "fake-audio" {
		t.Errorf("audio = %q", audio)
	}
	if got.Text != "guten tag" {
		t.Errorf("text = %q", got.Text)
	}
	if got.ModelID != "eleven_flash_v2_5" {
		t.Errorf("model = %q, want default", got.ModelID)
	}
	if got.VoiceSettings == nil || got.VoiceSettings.Stability != 0.5 {
		t.Errorf("voice settings = %+v", got.VoiceSettings)
	}
}

func TestSynthesizeValidation(t *testing.T) {
	p, _ := New("k")

	t.Run("empty text", func(t *testing.T) {
		_, err := p.Synthesize(context.Background(), "", tts.VoiceProfile{ID: "v"})
		if !errors.Is(err, tts.ErrEmptyText) {
			t.Errorf("err = %v, want ErrEmptyText", err)
		}
	})

	t.Run("missing voice", func(t *testing.T) {
		if _, err := p.Synthesize(context.Background(), "hi", tts.VoiceProfile{}); err == nil {
			t.Error("expected error for missing voice ID")
		}
	})
}

func TestSynthesizeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid voice"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL))
	if _, err := p.Synthesize(context.Background(), "hi", tts.VoiceProfile{ID: "nope"}); err == nil {
		t.Fatal("expected error")
	}
}

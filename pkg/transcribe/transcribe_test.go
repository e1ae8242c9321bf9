package transcribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/haivivi/edutalk/pkg/audio/pcm"
	"github.com/haivivi/edutalk/pkg/capture"
)

func testRecording() capture.Recording {
	return capture.Recording{Samples: make([]int16, 8000), Format: pcm.L16Mono16K}
}

func TestTranscribe(t *testing.T) {
	var (
		model, lang, path string
		wavHead           []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm: %v", err)
		}
		model = r.FormValue("model")
		lang = r.FormValue("language")
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
		} else {
			wavHead = make([]byte, 4)
			io.ReadFull(f, wavHead)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"text":"  When is maths today?  "}`)
	}))
	defer srv.Close()

	tr := NewOpenAI("k", WithBaseURL(srv.URL+"/v1/"), WithLanguage("en"), WithModel("base"))
	text, err := tr.Transcribe(context.Background(), testRecording())
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "When is maths today?" {
		t.Fatalf("text = %q", text)
	}
	if path != "/v1/audio/transcriptions" {
		t.Errorf("path = %q", path)
	}
	if model != "base" || lang != "en" {
		t.Errorf("model = %q, language = %q", model, lang)
	}
	if string(wavHead) != "RIFF" {
		t.Errorf("uploaded file starts with %q, want RIFF", wavHead)
	}
}

func TestTranscribeEmpty(t *testing.T) {
	tr := NewOpenAI("k", WithBaseURL("http://127.0.0.1:0/"))
	_, err := tr.Transcribe(context.Background(), capture.Recording{Format: pcm.L16Mono16K})
	if !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("err = %v, want ErrEmptyAudio", err)
	}
}

func TestTranscribeHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"bad audio","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	tr := NewOpenAI("k", WithBaseURL(srv.URL+"/v1/"))
	_, err := tr.Transcribe(context.Background(), testRecording())
	if err == nil || !strings.HasPrefix(err.Error(), "transcribe:") {
		t.Fatalf("err = %v", err)
	}
}

// AngelaMos | 2026
// openai_test.go

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/carterperez-dev/studybuddy/internal/config"
)

func newTestClient(url string, retries int) *OpenAI {
	return NewOpenAI(config.GeneratorConfig{
		APIKey:     "test-key",
		BaseURL:    url,
		Model:      "test-model",
		Timeout:    5 * time.Second,
		MaxRetries: retries,
	}, nil)
}

func reply(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	//nolint:errcheck // test server
	_ = json.NewEncoder(w).Encode(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
	})
}

func TestCompleteSendsChatRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		if req.Model != "test-model" || len(req.Messages) != 2 || req.Temperature != 0.7 {
			t.Errorf("request = %+v", req)
		}
		if req.ResponseFormat["type"] != "json_object" {
			t.Errorf("response_format = %v", req.ResponseFormat)
		}

		reply(w, `{"ok":true}`)
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, 0)
	got, err := client.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "hi"},
	}, Options{Temperature: 0.7, JSONMode: true})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != `{"ok":true}` {
		t.Fatalf("reply = %q", got)
	}
}

func TestCompleteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		reply(w, "second time lucky")
	}))
	defer srv.Close()

	got, err := newTestClient(srv.URL, 2).Complete(context.Background(), nil, Options{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got != "second time lucky" || calls.Load() != 2 {
		t.Fatalf("reply = %q after %d calls", got, calls.Load())
	}
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 3).Complete(context.Background(), nil, Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRetryable(err) {
		t.Fatalf("400 reported as retryable: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestCompleteEmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reply(w, "   ")
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 0).Complete(context.Background(), nil, Options{})
	if !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("err = %v, want ErrEmptyReply", err)
	}
}

func TestCompleteWithoutCredential(t *testing.T) {
	client := NewOpenAI(config.GeneratorConfig{BaseURL: "http://unused"}, nil)

	_, err := client.Complete(context.Background(), nil, Options{})
	if !errors.Is(err, ErrNoCredential) {
		t.Fatalf("err = %v, want ErrNoCredential", err)
	}
}

func TestCompleteDryRun(t *testing.T) {
	client := NewOpenAI(config.GeneratorConfig{DryRun: true}, nil)

	got, err := client.Complete(context.Background(), nil, Options{DryRunReply: "canned"})
	if err != nil || got != "canned" {
		t.Fatalf("Complete = %q, %v", got, err)
	}
}

func TestTranscribeSendsMultipartForm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		if got := r.FormValue("model"); got != "whisper-test" {
			t.Errorf("model = %q", got)
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close() //nolint:errcheck // test server
		data, _ := io.ReadAll(file)
		if header.Filename != "lecture.m4a" || string(data) != "RIFF" {
			t.Errorf("file = %s %q", header.Filename, data)
		}

		w.Header().Set("Content-Type", "application/json")
		//nolint:errcheck // test server
		_ = json.NewEncoder(w).Encode(map[string]string{"text": " cells divide by mitosis "})
	}))
	defer srv.Close()

	client := NewOpenAI(config.GeneratorConfig{
		APIKey:     "test-key",
		BaseURL:    srv.URL,
		AudioModel: "whisper-test",
		Timeout:    5 * time.Second,
	}, nil)

	got, err := client.Transcribe(context.Background(), Audio{Filename: "lecture.m4a", Data: []byte("RIFF")})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if got != "cells divide by mitosis" {
		t.Fatalf("text = %q", got)
	}
}

func TestTranscribeBlankText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		//nolint:errcheck // test server
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "  "})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL, 0).Transcribe(context.Background(), Audio{Data: []byte("x")})
	if !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("err = %v, want ErrEmptyReply", err)
	}
}

package image

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGenerateDecodesInlineData(t *testing.T) {
	payload := []byte("png-bytes")
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")

		var body generateBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if body.Prompt != "a lighthouse" || body.Size != "1024x1024" {
			t.Errorf("request body = %+v", body)
		}

		_ = json.NewEncoder(w).Encode(generateResponse{
			Data:   base64.StdEncoding.EncodeToString(payload),
			Format: "png",
			Width:  1024,
			Height: 1024,
		})
	}))
	defer srv.Close()

	gen, err := NewHTTPGenerator(Options{BaseURL: srv.URL, APIKey: "secret", HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("NewHTTPGenerator: %v", err)
	}

	result, err := gen.Generate(context.Background(), GenerateRequest{
		Prompt:  "a lighthouse",
		Quality: "standard",
		Size:    "1024x1024",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if string(result.Data) != string(payload) {
		t.Errorf("data = %q", result.Data)
	}
	if result.Width != 1024 || result.Format != "png" {
		t.Errorf("result = %+v", result)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("authorization = %q", gotAuth)
	}
}

func TestGenerateAcceptsURLOnlyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(generateResponse{URL: "https://cdn.example/img.png", Width: 512, Height: 512})
	}))
	defer srv.Close()

	gen, err := NewHTTPGenerator(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("NewHTTPGenerator: %v", err)
	}
	result, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if result.URL != "https://cdn.example/img.png" {
		t.Errorf("url = %q", result.URL)
	}
}

func TestGenerateErrors(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "provider error field",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(generateResponse{Error: "nsfw prompt"})
			},
		},
		{
			name: "non-200 status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream down", http.StatusBadGateway)
			},
		},
		{
			name: "empty result",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(generateResponse{})
			},
		},
		{
			name: "bad base64",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(generateResponse{Data: "!!not-base64!!"})
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			gen, err := NewHTTPGenerator(Options{BaseURL: srv.URL, HTTPClient: srv.Client()})
			if err != nil {
				t.Fatalf("NewHTTPGenerator: %v", err)
			}
			if _, err := gen.Generate(context.Background(), GenerateRequest{Prompt: "x"}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNewHTTPGeneratorRequiresBaseURL(t *testing.T) {
	if _, err := NewHTTPGenerator(Options{}); err == nil {
		t.Fatal("expected error for missing base url")
	}
}

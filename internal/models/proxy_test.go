package models_test

import (
	"testing"

	"github.com/tannerhall/tinychat/internal/models"
)

func TestProxyRequestValidate(t *testing.T) {
	tests := []struct {
		name     string
		messages []models.Message
		wantErr  bool
	}{
		{
			name:    "nil messages",
			wantErr: true,
		},
		{
			name:     "empty messages",
			messages: []models.Message{},
			wantErr:  true,
		},
		{
			name: "invalid role",
			messages: []models.Message{
				{Role: "robot", Content: "beep"},
			},
			wantErr: true,
		},
		{
			name: "single user message",
			messages: []models.Message{
				{Role: models.RoleUser, Content: "Hello"},
			},
		},
		{
			name: "full history",
			messages: []models.Message{
				{Role: models.RoleSystem, Content: "Be helpful"},
				{Role: models.RoleUser, Content: "Hello"},
				{Role: models.RoleAssistant, Content: "Hi there"},
				{Role: models.RoleUser, Content: "Bye"},
			},
		},
		{
			name: "empty content is allowed",
			messages: []models.Message{
				{Role: models.RoleUser, Content: ""},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := models.ProxyRequest{Messages: tt.messages}.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   models.ErrorKind
	}{
		{"bad request", 400, "Invalid messages format", models.ErrorKindBadRequest},
		{"unauthorized", 401, "Invalid API key", models.ErrorKindUnauthorized},
		{"rate limited", 429, "Rate limit exceeded", models.ErrorKindRateLimited},
		{"missing credential", 500, "Missing OPENROUTER_API_KEY configuration", models.ErrorKindServerMisconfigured},
		{"other 500", 500, "Error: upstream exploded", models.ErrorKindUnknown},
		{"teapot", 418, "short and stout", models.ErrorKindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := models.KindForStatus(tt.status, tt.body); got != tt.want {
				t.Fatalf("KindForStatus(%d, %q) = %q, want %q", tt.status, tt.body, got, tt.want)
			}
		})
	}
}

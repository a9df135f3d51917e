// Copyright (c) 2026 Quill. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package api_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/quill/internal/api"
	"github.com/taibuivan/quill/internal/comment"
	"github.com/taibuivan/quill/internal/platform/config"
	"github.com/taibuivan/quill/internal/platform/sec"
)

type envelope struct {
	Status string          `json:"status"`
	Code   string          `json:"code"`
	Data   json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, deps api.HealthDependencies) (*httptest.Server, *sec.TokenService) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	tokens := sec.NewTokenServiceFromKeys(key, nil, "quill.test")

	liveness, readiness := api.NewHealthHandlers(deps, logger)
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Comment:   comment.NewHandler(comment.NewService(comment.NewMemoryRepository(), logger)),
	}

	cfg := &config.Config{ServerPort: "0", Environment: "production", AllowedOriginSuffix: "quill.app"}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	server := httptest.NewServer(api.NewServer(ctx, cfg, logger, tokens, handlers).Handler())
	t.Cleanup(server.Close)
	return server, tokens
}

func send(t *testing.T, request *http.Request) (*http.Response, envelope) {
	t.Helper()
	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	defer response.Body.Close()

	var decoded envelope
	raw, err := io.ReadAll(response.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return response, decoded
}

/*
TestServer_Health checks both probes.
*/
func TestServer_Health(t *testing.T) {
	server, _ := newTestServer(t, api.HealthDependencies{
		CheckCache: func() error { return errors.New("connection refused") },
	})

	request, _ := http.NewRequest(http.MethodGet, server.URL+"/health", nil)
	response, body := send(t, request)
	assert.Equal(t, http.StatusOK, response.StatusCode)
	assert.Equal(t, "success", body.Status)
	assert.NotEmpty(t, response.Header.Get("X-Request-ID"))

	request, _ = http.NewRequest(http.MethodGet, server.URL+"/ready", nil)
	response, body = send(t, request)
	assert.Equal(t, http.StatusServiceUnavailable, response.StatusCode)
	assert.Contains(t, string(body.Data), `"degraded"`)
}

/*
TestServer_CommentRoutes drives the comment API through the whole middleware chain.
*/
func TestServer_CommentRoutes(t *testing.T) {
	server, tokens := newTestServer(t, api.HealthDependencies{})
	token, err := tokens.GenerateAccessToken("user-1", "mira", time.Minute)
	require.NoError(t, err)

	request, _ := http.NewRequest(http.MethodPost, server.URL+"/api/v1/comments", strings.NewReader(`{"content":"Great chapter!","novelRef":"N1"}`))
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+token)
	response, body := send(t, request)
	require.Equal(t, http.StatusCreated, response.StatusCode)
	assert.Equal(t, "success", body.Status)

	request, _ = http.NewRequest(http.MethodGet, server.URL+"/api/v1/comments/novel/N1", nil)
	response, body = send(t, request)
	require.Equal(t, http.StatusOK, response.StatusCode)
	assert.Contains(t, string(body.Data), "Great chapter!")

	request, _ = http.NewRequest(http.MethodPost, server.URL+"/api/v1/comments", strings.NewReader(`{"content":"x","novelRef":"N1"}`))
	request.Header.Set("Authorization", "Bearer forged")
	response, body = send(t, request)
	assert.Equal(t, http.StatusUnauthorized, response.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body.Code)
}

/*
TestServer_CORS checks that preflights from allowed origins pass without a token.
*/
func TestServer_CORS(t *testing.T) {
	server, _ := newTestServer(t, api.HealthDependencies{})

	request, _ := http.NewRequest(http.MethodOptions, server.URL+"/api/v1/comments", nil)
	request.Header.Set("Origin", "https://read.quill.app")
	request.Header.Set("Authorization", "Bearer forged")
	response, _ := send(t, request)
	assert.Equal(t, http.StatusNoContent, response.StatusCode)
	assert.Equal(t, "https://read.quill.app", response.Header.Get("Access-Control-Allow-Origin"))

	request, _ = http.NewRequest(http.MethodOptions, server.URL+"/api/v1/comments", nil)
	request.Header.Set("Origin", "https://evil.example")
	response, _ = send(t, request)
	assert.Empty(t, response.Header.Get("Access-Control-Allow-Origin"))
}

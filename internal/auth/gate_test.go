package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KanhaKorgaonkar/mcp-fitbit-poke/internal/jsonrpc"
)

func request(headers map[string]string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	for k, v := range headers {
		r.Header.Set(k, v)
	}
	return r
}

func TestGate_Authorize(t *testing.T) {
	gate := NewGate([]string{"K1", "K2"})

	tests := []struct {
		name    string
		headers map[string]string
		want    bool
	}{
		{"bearer K1", map[string]string{"Authorization": "Bearer K1"}, true},
		{"bearer K2", map[string]string{"Authorization": "Bearer K2"}, true},
		{"api key header", map[string]string{"X-Api-Key": "K2"}, true},
		{"api key header with spaces", map[string]string{"X-Api-Key": "  K1 "}, true},
		{"wrong bearer", map[string]string{"Authorization": "Bearer K3"}, false},
		{"wrong api key", map[string]string{"X-Api-Key": "nope"}, false},
		{"prefix of key", map[string]string{"Authorization": "Bearer K"}, false},
		{"no credential", nil, false},
		{"basic auth ignored", map[string]string{"Authorization": "Basic SzE="}, false},
		{"basic auth falls back to api key", map[string]string{"Authorization": "Basic SzE=", "X-Api-Key": "K1"}, true},
		{"bearer wins over api key", map[string]string{"Authorization": "Bearer bad", "X-Api-Key": "K1"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gate.Authorize(request(tt.headers)))
		})
	}
}

func TestGate_NoKeysAllowsAll(t *testing.T) {
	gate := NewGate(nil)
	assert.False(t, gate.Enabled())
	assert.True(t, gate.Authorize(request(nil)))
	assert.True(t, gate.Authorize(request(map[string]string{"Authorization": "Bearer anything"})))

	gate = NewGate([]string{"", "   "})
	assert.False(t, gate.Enabled())
}

type countingRecorder struct{ n int }

func (c *countingRecorder) RecordAuthRejection(*http.Request) { c.n++ }

func TestGate_Middleware(t *testing.T) {
	rec := &countingRecorder{}
	gate := NewGate([]string{"secret"}, WithRecorder(rec))

	called := false
	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, request(map[string]string{"X-Api-Key": "wrong"}))

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 1, rec.n)

	var body jsonrpc.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "2.0", body.JSONRPC)
	assert.Equal(t, jsonrpc.CodeUnauthorized, body.Error.Code)
	assert.Equal(t, "null", string(body.ID))

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, request(map[string]string{"Authorization": "Bearer secret"}))
	assert.True(t, called)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestKeysFromEnv(t *testing.T) {
	tests := []struct {
		name   string
		single string
		list   string
		want   []string
	}{
		{"nothing", "", "", nil},
		{"single", " k1 ", "", []string{"k1"}},
		{"list", "", "a, b,,c ", []string{"a", "b", "c"}},
		{"list wins", "single", "a,b", []string{"a", "b"}},
		{"empty list falls back", "single", " , ", []string{"single"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KeysFromEnv(tt.single, tt.list))
		})
	}
}

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ashureev/spendchat/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONWritesStatusAndBody(t *testing.T) {
	w := httptest.NewRecorder()

	JSON(w, http.StatusCreated, map[string]float64{"income": 4000})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var got map[string]float64
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, 4000.0, got["income"])
}

func TestErrorWrapsMessage(t *testing.T) {
	w := httptest.NewRecorder()

	Error(w, http.StatusForbidden, "user not allowed")

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"user not allowed"}`, w.Body.String())
}

func TestIsDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "")

	assert.True(t, NewHandler(nil, nil).isDevelopment())
	assert.False(t, NewHandler(nil, &config.Config{FrontendURL: "https://dash.example.com"}).isDevelopment())
}

package handlers

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterRoutes(t *testing.T) {
	router := chi.NewRouter()
	require.NotPanics(t, func() {
		NewHandler(nil, zerolog.Nop()).RegisterRoutes(router)
	})

	routes := map[string]bool{}
	err := chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
		routes[method+" "+route] = true
		return nil
	})
	require.NoError(t, err)

	for _, expected := range []string{
		"POST /portfolio/positions",
		"POST /portfolio/build",
		"POST /query",
		"POST /value",
	} {
		assert.True(t, routes[expected], "missing route %s (have %v)", expected, routes)
	}
}

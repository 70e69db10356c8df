package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"skatesync/pkg/auth"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newFakeGameServer runs an httptest server with the game server's
// route shapes.
func newFakeGameServer(t *testing.T, configure func(r *mux.Router)) *httptest.Server {
	t.Helper()
	router := mux.NewRouter()
	configure(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(baseURL string) *HTTPGameService {
	return NewHTTPGameService(NewHTTPGameServiceOptions{
		BaseURL:     baseURL,
		TokenSource: auth.NewStaticTokenSource("test-token"),
		Timeout:     5 * time.Second,
	})
}

func TestHTTPGameService_ResolveRound(t *testing.T) {
	var received *ResolveRoundRequest
	var authHeader string
	srv := newFakeGameServer(t, func(r *mux.Router) {
		r.HandleFunc("/games/{id}/rounds", func(w http.ResponseWriter, req *http.Request) {
			authHeader = req.Header.Get("Authorization")
			received = &ResolveRoundRequest{}
			require.NoError(t, json.NewDecoder(req.Body).Decode(received))
			w.WriteHeader(http.StatusCreated)
		}).Methods(http.MethodPost)
	})

	service := newTestService(srv.URL)
	req := &ResolveRoundRequest{
		GameID:           1,
		RoundNumber:      3,
		SetterUsername:   "alice",
		ReceiverUsername: "bob",
		TrickDetails:     "kickflip",
		SetterLanded:     true,
		LetterAssignTo:   "bob",
		AuthorUsername:   "alice",
		ClientTimestamp:  time.Now(),
	}
	require.NoError(t, service.ResolveRound(context.Background(), req))

	assert.Equal(t, "Bearer test-token", authHeader)
	require.NotNil(t, received)
	assert.Equal(t, 3, received.RoundNumber)
	assert.Equal(t, "bob", received.LetterAssignTo)
	assert.True(t, received.SetterLanded)
	assert.False(t, received.ReceiverLanded)
}

func TestHTTPGameService_ResolveRound_conflictMapsToAlreadyResolved(t *testing.T) {
	srv := newFakeGameServer(t, func(r *mux.Router) {
		r.HandleFunc("/games/{id}/rounds", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}).Methods(http.MethodPost)
	})

	service := newTestService(srv.URL)
	err := service.ResolveRound(context.Background(), &ResolveRoundRequest{GameID: 1, RoundNumber: 1})
	assert.True(t, IsAlreadyResolved(err))
}

func TestHTTPGameService_unauthorized(t *testing.T) {
	srv := newFakeGameServer(t, func(r *mux.Router) {
		r.HandleFunc("/games/{id}", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}).Methods(http.MethodGet)
	})

	service := newTestService(srv.URL)
	_, err := service.FetchGameState(context.Background(), 1)
	assert.True(t, IsUnauthorized(err))
}

func TestHTTPGameService_FetchGameState(t *testing.T) {
	srv := newFakeGameServer(t, func(r *mux.Router) {
		r.HandleFunc("/games/{id}", func(w http.ResponseWriter, _ *http.Request) {
			json.NewEncoder(w).Encode(&GameState{
				GameID: 1,
				Players: []Player{
					{UserID: 10, Username: "alice", PlayerNumber: 1, FinalLetters: 0},
					{UserID: 20, Username: "bob", PlayerNumber: 2, FinalLetters: 2},
				},
				Tricks: []Trick{
					{TurnNumber: 1, SetterID: 10, ReceiverID: 20, TrickDetails: "kickflip",
						SetterLanded: true, LetterAssignedToUsername: "bob"},
				},
				CurrentTurnUserID: 10,
				Status:            "active",
			})
		}).Methods(http.MethodGet)
	})

	service := newTestService(srv.URL)
	state, err := service.FetchGameState(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, int64(1), state.GameID)
	require.NotNil(t, state.PlayerByID(20))
	assert.Equal(t, 2, state.PlayerByID(20).FinalLetters)
	require.NotNil(t, state.TrickForTurn(1))
	assert.Equal(t, "bob", state.TrickForTurn(1).LetterAssignedToUsername)
	assert.Nil(t, state.TrickForTurn(2))
}

func TestHTTPGameService_serverErrorIncludesBody(t *testing.T) {
	srv := newFakeGameServer(t, func(r *mux.Router) {
		r.HandleFunc("/games/{id}/pause", func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "game is archived", http.StatusUnprocessableEntity)
		}).Methods(http.MethodPost)
	})

	service := newTestService(srv.URL)
	err := service.PauseGame(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
	assert.Contains(t, err.Error(), "game is archived")
}

func TestGameState_PlayerByNumber(t *testing.T) {
	state := &GameState{
		Players: []Player{
			{UserID: 10, Username: "alice", PlayerNumber: 1},
			{UserID: 20, Username: "bob", PlayerNumber: 2},
		},
	}
	require.NotNil(t, state.PlayerByNumber(2))
	assert.Equal(t, "bob", state.PlayerByNumber(2).Username)
	assert.Nil(t, state.PlayerByNumber(3))
}

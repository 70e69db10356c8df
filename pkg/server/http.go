package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"skatesync/pkg/auth"
	"skatesync/pkg/log"
)

const defaultRequestTimeout = 10 * time.Second

// HTTPGameService talks to the game server over HTTP with bearer-token
// authentication.
type HTTPGameService struct {
	baseURL     string
	tokenSource auth.TokenSource
	httpClient  *http.Client
}

type NewHTTPGameServiceOptions struct {
	BaseURL     string
	TokenSource auth.TokenSource
	// Timeout applies per request. Zero means defaultRequestTimeout.
	Timeout time.Duration
}

func NewHTTPGameService(opts NewHTTPGameServiceOptions) *HTTPGameService {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}
	return &HTTPGameService{
		baseURL:     opts.BaseURL,
		tokenSource: opts.TokenSource,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (s *HTTPGameService) ResolveRound(ctx context.Context, req *ResolveRoundRequest) error {
	path := fmt.Sprintf("/games/%d/rounds", req.GameID)
	return s.post(ctx, path, req, nil)
}

func (s *HTTPGameService) FetchGameState(ctx context.Context, gameID int64) (*GameState, error) {
	path := fmt.Sprintf("/games/%d", gameID)
	state := &GameState{}
	if err := s.get(ctx, path, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *HTTPGameService) UpdateLetters(ctx context.Context, gameID int64, username string, letters int) error {
	path := fmt.Sprintf("/games/%d/letters", gameID)
	body := map[string]interface{}{
		"username": username,
		"letters":  letters,
	}
	return s.post(ctx, path, body, nil)
}

func (s *HTTPGameService) UpdateStatusMessage(ctx context.Context, gameID int64, message string) error {
	path := fmt.Sprintf("/games/%d/status", gameID)
	body := map[string]interface{}{
		"message": message,
	}
	return s.post(ctx, path, body, nil)
}

func (s *HTTPGameService) PauseGame(ctx context.Context, gameID int64) error {
	return s.post(ctx, fmt.Sprintf("/games/%d/pause", gameID), nil, nil)
}

func (s *HTTPGameService) ResumeGame(ctx context.Context, gameID int64) error {
	return s.post(ctx, fmt.Sprintf("/games/%d/resume", gameID), nil, nil)
}

func (s *HTTPGameService) CancelGame(ctx context.Context, gameID int64) error {
	return s.post(ctx, fmt.Sprintf("/games/%d/cancel", gameID), nil, nil)
}

func (s *HTTPGameService) CompleteGame(ctx context.Context, gameID int64) error {
	return s.post(ctx, fmt.Sprintf("/games/%d/complete", gameID), nil, nil)
}

func (s *HTTPGameService) get(ctx context.Context, path string, out interface{}) error {
	return s.do(ctx, http.MethodGet, path, nil, out)
}

func (s *HTTPGameService) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	return s.do(ctx, http.MethodPost, path, body, out)
}

func (s *HTTPGameService) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	token, err := s.tokenSource.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get token: %v", err)
	}

	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		// The server recorded this round before we delivered it.
		log.Debug("Server reported already resolved for %s %s", method, path)
		return &ErrAlreadyResolved{}
	case resp.StatusCode == http.StatusUnauthorized:
		return &ErrUnauthorized{}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d from %s %s: %s", resp.StatusCode, method, path, string(respBody))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %v", err)
		}
	}

	return nil
}

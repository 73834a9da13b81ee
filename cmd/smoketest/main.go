// Command smoketest drives a running server through the main user flow:
// profile, chat, memory search and status.
//
// Environment: SMOKE_BASE_URL (default http://localhost:8080), and either
// SMOKE_TOKEN (Supabase access token) or SMOKE_USER_ID (header auth mode).
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var (
	baseURL = envOr("SMOKE_BASE_URL", "http://localhost:8080")
	client  = &http.Client{Timeout: 60 * time.Second}
)

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	fmt.Println("Starting smoke test against", baseURL)

	userID := envOr("SMOKE_USER_ID", fmt.Sprintf("smoke-%d", time.Now().Unix()))

	steps := []struct {
		name    string
		method  string
		path    string
		payload any
		want    int
	}{
		{"status", "GET", "/api/status", nil, http.StatusOK},
		{"profile", "PUT", "/api/profile", map[string]string{
			"display_name": "Alice", "mbti_type": "INFP", "birth_date": "1994-04-02",
		}, http.StatusOK},
		{"horoscope", "GET", "/api/horoscope/today", nil, http.StatusOK},
		{"remember", "POST", "/api/memories", map[string]string{
			"content": "My name is Alice and I love hiking in the Alps.",
		}, http.StatusCreated},
		{"chat", "POST", "/api/chat", map[string]string{
			"message": "Any ideas for my next weekend trip?", "archetype": "ENFP",
		}, http.StatusOK},
		{"search", "POST", "/api/memories/search", map[string]any{
			"query": "hiking", "threshold": 0.3,
		}, http.StatusOK},
		{"memory status", "GET", "/api/memories/status", nil, http.StatusOK},
	}

	for i, s := range steps {
		fmt.Printf("%d. %s...\n", i+1, s.name)
		if !sendRequest(s.method, s.path, userID, s.payload, s.want) {
			fmt.Printf("FAILED: %s\n", s.name)
			os.Exit(1)
		}
		fmt.Printf("PASSED: %s\n", s.name)
	}
}

func sendRequest(method, endpoint, userID string, payload any, want int) bool {
	var body io.Reader
	if payload != nil {
		jsonBytes, _ := json.Marshal(payload)
		body = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+endpoint, body)
	if err != nil {
		fmt.Printf("Error creating request: %v\n", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	if token := os.Getenv("SMOKE_TOKEN"); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	} else {
		req.Header.Set("X-User-ID", userID)
	}

	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error sending request: %v\n", err)
		return false
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		fmt.Printf("Request failed with status %d: %s\n", resp.StatusCode, string(respBody))
		return false
	}
	fmt.Printf("Response: %s\n", string(respBody))
	return true
}

// Package e2e drives the calibration service end to end over HTTP.
//
// The suite targets a running server (CALIBRA_E2E_URL). Startup-failure
// scenarios additionally need the server binary path (CALIBRA_SERVER_BIN)
// so they can launch it against a broken artifact set.
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"time"
)

const startupTimeout = 15 * time.Second

// TestContext carries shared state across step packages: the HTTP
// client, the last response, and a stash for values steps hand to each
// other within a scenario.
type TestContext struct {
	baseURL   string
	serverBin string
	client    *http.Client

	lastStatus int
	lastBody   []byte

	stash map[string]any
}

// NewTestContext builds the shared context for one suite run.
func NewTestContext(baseURL, serverBin string) *TestContext {
	return &TestContext{
		baseURL:   baseURL,
		serverBin: serverBin,
		client:    &http.Client{Timeout: 10 * time.Second},
		stash:     make(map[string]any),
	}
}

// Reset clears per-scenario state. Called from a Before hook.
func (tc *TestContext) Reset() {
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.stash = make(map[string]any)
}

// POST sends a JSON body and records the response.
func (tc *TestContext) POST(path string, body any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	return tc.POSTRaw(path, raw)
}

// POSTRaw sends pre-encoded JSON and records the response.
func (tc *TestContext) POSTRaw(path string, raw []byte) error {
	resp, err := tc.client.Post(tc.baseURL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	return tc.record(resp)
}

// GET fetches a path and records the response.
func (tc *TestContext) GET(path string) error {
	resp, err := tc.client.Get(tc.baseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return tc.record(resp)
}

func (tc *TestContext) record(resp *http.Response) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	tc.lastStatus = resp.StatusCode
	tc.lastBody = body
	return nil
}

// Status returns the last response status code.
func (tc *TestContext) Status() int {
	return tc.lastStatus
}

// Body returns the last response body.
func (tc *TestContext) Body() []byte {
	return tc.lastBody
}

// JSON parses the last response body as a JSON object.
func (tc *TestContext) JSON() (map[string]any, error) {
	var parsed map[string]any
	if err := json.Unmarshal(tc.lastBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse response %q: %w", string(tc.lastBody), err)
	}
	return parsed, nil
}

// Stash stores a value for a later step in the same scenario.
func (tc *TestContext) Stash(key string, value any) {
	tc.stash[key] = value
}

// Stashed returns a previously stashed value, or nil.
func (tc *TestContext) Stashed(key string) any {
	return tc.stash[key]
}

// ServerBinary returns the server binary path, empty when the suite runs
// without startup scenarios.
func (tc *TestContext) ServerBinary() string {
	return tc.serverBin
}

// GoodArtifactsDir is the known-good artifact set relative to the e2e
// module root, used as the base for broken-artifact scenarios.
func (tc *TestContext) GoodArtifactsDir() string {
	return "../testdata/artifacts"
}

// RunServer launches the server binary against the given artifact
// directory and returns its combined output once it exits. A server that
// keeps running is killed at the timeout, which the caller treats as a
// successful start.
func (tc *TestContext) RunServer(artifactsDir string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, tc.serverBin)
	cmd.Env = append(os.Environ(),
		"CALIBRA_ARTIFACTS_DIR="+artifactsDir,
		"CALIBRA_ADDR=127.0.0.1:0",
		"CALIBRA_AUDIT_BACKEND=memory",
	)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/warpdl/timerkit/internal/daemon"
)

// rpcResponse is the subset of a JSON-RPC 2.0 response the tests inspect.
type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func startServer(t *testing.T, secret string) (*httptest.Server, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	runner := daemon.New(daemon.Config{}, nil)
	go func() { _ = runner.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for !runner.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("runner did not start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	rs := NewRPCServer(Config{Secret: secret, Version: "test"}, runner, nil)
	ts := httptest.NewServer(rs.Handler())
	t.Cleanup(ts.Close)
	return ts, cancel
}

// call posts a JSON-RPC request to the bridge and decodes the response.
func call(t *testing.T, ts *httptest.Server, token, method string, params any) rpcResponse {
	t.Helper()
	body := map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
	}
	if params != nil {
		body["params"] = params
	}
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/rpc", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("post %s: %v", method, err)
	}
	defer resp.Body.Close()

	var out rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s response: %v", method, err)
	}
	return out
}

func TestRPC_GetVersion(t *testing.T) {
	ts, cancel := startServer(t, "")
	defer cancel()

	resp := call(t, ts, "", "system.getVersion", nil)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error.Message)
	}
	var res VersionResult
	if err := json.Unmarshal(resp.Result, &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Version != "test" {
		t.Errorf("expected version 'test', got %q", res.Version)
	}
}

func TestRPC_SetTimeoutAndPending(t *testing.T) {
	ts, cancel := startServer(t, "")
	defer cancel()

	resp := call(t, ts, "", "timer.setTimeout", SetParams{Code: "1 + 1", DelayMs: 60000})
	if resp.Error != nil {
		t.Fatalf("setTimeout failed: %v", resp.Error.Message)
	}
	var h HandleResult
	if err := json.Unmarshal(resp.Result, &h); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if h.ID <= 0 {
		t.Errorf("expected a positive handle, got %d", h.ID)
	}

	resp = call(t, ts, "", "timer.pending", nil)
	var st StatusResult
	if err := json.Unmarshal(resp.Result, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.Pending != 1 || st.Active != 1 {
		t.Errorf("expected 1 pending / 1 active, got %+v", st)
	}

	resp = call(t, ts, "", "timer.clear", ClearParams{ID: h.ID})
	if resp.Error != nil {
		t.Fatalf("clear failed: %v", resp.Error.Message)
	}

	resp = call(t, ts, "", "timer.pending", nil)
	if err := json.Unmarshal(resp.Result, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.Pending != 0 || st.Active != 0 {
		t.Errorf("expected empty state after clear, got %+v", st)
	}
}

func TestRPC_SetTimeoutRequiresCode(t *testing.T) {
	ts, cancel := startServer(t, "")
	defer cancel()

	resp := call(t, ts, "", "timer.setTimeout", SetParams{DelayMs: 10})
	if resp.Error == nil {
		t.Fatal("expected an error for missing code")
	}
	if resp.Error.Code != int(codeInvalidParams) {
		t.Errorf("expected code %d, got %d", codeInvalidParams, resp.Error.Code)
	}
}

func TestRPC_SuspendResumeLifecycle(t *testing.T) {
	ts, cancel := startServer(t, "")
	defer cancel()

	// Resume before suspend is an error.
	resp := call(t, ts, "", "timer.resume", nil)
	if resp.Error == nil || resp.Error.Code != int(codeNotSuspended) {
		t.Fatalf("expected codeNotSuspended, got %+v", resp.Error)
	}

	resp = call(t, ts, "", "timer.suspend", nil)
	if resp.Error != nil {
		t.Fatalf("suspend failed: %v", resp.Error.Message)
	}

	// Double suspend is an error, not a crash.
	resp = call(t, ts, "", "timer.suspend", nil)
	if resp.Error == nil || resp.Error.Code != int(codeAlreadySuspended) {
		t.Fatalf("expected codeAlreadySuspended, got %+v", resp.Error)
	}

	resp = call(t, ts, "", "timer.pending", nil)
	var st StatusResult
	if err := json.Unmarshal(resp.Result, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !st.Suspended {
		t.Error("expected suspended status")
	}

	resp = call(t, ts, "", "timer.resume", nil)
	if resp.Error != nil {
		t.Fatalf("resume failed: %v", resp.Error.Message)
	}
}

func TestRPC_ScriptEvalAndTimerInteraction(t *testing.T) {
	ts, cancel := startServer(t, "")
	defer cancel()

	resp := call(t, ts, "", "script.eval", EvalParams{Code: "globalThis.count = 0"})
	if resp.Error != nil {
		t.Fatalf("eval failed: %v", resp.Error.Message)
	}

	resp = call(t, ts, "", "timer.setInterval", SetParams{Code: "count++", DelayMs: 20})
	if resp.Error != nil {
		t.Fatalf("setInterval failed: %v", resp.Error.Message)
	}

	// The interval stays registered across firings.
	time.Sleep(150 * time.Millisecond)
	resp = call(t, ts, "", "timer.pending", nil)
	var st StatusResult
	if err := json.Unmarshal(resp.Result, &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.Active != 1 {
		t.Errorf("expected the interval to stay active, got %+v", st)
	}
}

func TestRPC_AuthRequiredWhenSecretSet(t *testing.T) {
	ts, cancel := startServer(t, "hunter2")
	defer cancel()

	// No token: rejected with a JSON-RPC style error payload.
	resp, err := http.Post(ts.URL+"/rpc", "application/json",
		bytes.NewReader([]byte(`{"jsonrpc":"2.0","id":1,"method":"system.getVersion"}`)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	// Correct token: accepted.
	out := call(t, ts, "hunter2", "system.getVersion", nil)
	if out.Error != nil {
		t.Fatalf("expected success with token, got %v", out.Error.Message)
	}
}

func TestValidToken(t *testing.T) {
	cases := []struct {
		secret, header string
		want           bool
	}{
		{"s3cret", "Bearer s3cret", true},
		{"s3cret", "Bearer wrong", false},
		{"s3cret", "s3cret", false},
		{"s3cret", "", false},
	}
	for _, c := range cases {
		if got := validToken(c.secret, c.header); got != c.want {
			t.Errorf("validToken(%q, %q) = %v, want %v", c.secret, c.header, got, c.want)
		}
	}
}

func TestRPC_NotRunningMapsToError(t *testing.T) {
	runner := daemon.New(daemon.Config{}, nil)
	rs := NewRPCServer(Config{}, runner, nil)
	ts := httptest.NewServer(rs.Handler())
	defer ts.Close()

	resp := call(t, ts, "", "timer.pending", nil)
	if resp.Error == nil || resp.Error.Code != int(codeNotRunning) {
		t.Fatalf("expected codeNotRunning, got %+v", resp.Error)
	}
}

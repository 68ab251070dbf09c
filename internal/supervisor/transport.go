package supervisor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/unicitynetwork/unicity-orchestrator/internal/model"
	"github.com/unicitynetwork/unicity-orchestrator/pkg/mcp"
)

// Transport speaks the MCP JSON-RPC handshake and call surface to a single
// child service, over whichever wire (stdio or http) the manifest declared.
type Transport interface {
	Initialize(ctx context.Context) (mcp.InitializeResult, error)
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	ListPrompts(ctx context.Context) ([]mcp.Prompt, error)
	ListResources(ctx context.Context) ([]mcp.Resource, error)
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (mcp.GetPromptResult, error)
	ReadResource(ctx context.Context, uri string) (any, error)
	Close() error
}

const clientProtocolVersion = "2025-06-18"

// rawResponse mirrors mcp.JSONRPCResponse but keeps Result undecoded, so
// callers can unmarshal it into whatever shape the method expects.
type rawResponse struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      any               `json:"id,omitempty"`
	Result  json.RawMessage   `json:"result,omitempty"`
	Error   *mcp.JSONRPCError `json:"error,omitempty"`
}

// ---- stdio transport -------------------------------------------------

// stdioTransport spawns the configured command and speaks line-framed
// JSON-RPC over its stdin/stdout.
type stdioTransport struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner
	nextID  int64
}

func newStdioTransport(ctx context.Context, spec model.SpawnSpec) (*stdioTransport, error) {
	cmd := exec.CommandContext(ctx, spec.Command, spec.Args...)
	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn %s: %w", spec.Command, err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	return &stdioTransport{cmd: cmd, stdin: stdin, scanner: scanner}, nil
}

func (t *stdioTransport) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := atomic.AddInt64(&t.nextID, 1)
	req := mcp.JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req.Params = b
	}

	line, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	line = append(line, '\n')

	done := make(chan struct{})
	var resp rawResponse
	var callErr error
	go func() {
		defer close(done)
		if _, werr := t.stdin.Write(line); werr != nil {
			callErr = werr
			return
		}
		if !t.scanner.Scan() {
			callErr = t.scanner.Err()
			if callErr == nil {
				callErr = io.EOF
			}
			return
		}
		callErr = json.Unmarshal(bytes.TrimSpace(t.scanner.Bytes()), &resp)
	}()

	select {
	case <-ctx.Done():
		return nil, model.NewError(model.ErrTransportError, "child call canceled: %v", ctx.Err()).WithRetryable(true)
	case <-done:
	}

	if callErr != nil {
		return nil, model.NewError(model.ErrTransportError, "child transport: %v", callErr).WithRetryable(true)
	}
	if resp.Error != nil {
		return nil, model.NewError(model.ErrInternal, "child error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

func (t *stdioTransport) Initialize(ctx context.Context) (mcp.InitializeResult, error) {
	raw, err := t.call(ctx, "initialize", mcp.InitializeParams{
		ProtocolVersion: clientProtocolVersion,
		ClientInfo:      mcp.ClientInfo{Name: "unicity-orchestrator", Version: "1.0.0"},
	})
	if err != nil {
		return mcp.InitializeResult{}, err
	}
	var result mcp.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return mcp.InitializeResult{}, err
	}
	return result, nil
}

func (t *stdioTransport) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	raw, err := t.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Tools []mcp.Tool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

func (t *stdioTransport) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	raw, err := t.call(ctx, "prompts/list", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Prompts []mcp.Prompt `json:"prompts"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out.Prompts, nil
}

func (t *stdioTransport) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	raw, err := t.call(ctx, "resources/list", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Resources []mcp.Resource `json:"resources"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out.Resources, nil
}

func (t *stdioTransport) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	raw, err := t.call(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *stdioTransport) GetPrompt(ctx context.Context, name string, args map[string]string) (mcp.GetPromptResult, error) {
	raw, err := t.call(ctx, "prompts/get", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return mcp.GetPromptResult{}, err
	}
	var out mcp.GetPromptResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return mcp.GetPromptResult{}, err
	}
	return out, nil
}

func (t *stdioTransport) ReadResource(ctx context.Context, uri string) (any, error) {
	raw, err := t.call(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *stdioTransport) Close() error {
	_ = t.stdin.Close()
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	return t.cmd.Wait()
}

// ---- HTTP transport ----------------------------------------------------

// httpTransport speaks MCP over a streamable HTTP session, grounded on the
// gateway's upstream-model-listing klient usage: one base URL, one http
// client, declared headers replayed on every request, and an Mcp-Session-Id
// captured from the initialize response and replayed thereafter.
type httpTransport struct {
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
	sessionID  string
	nextID     int64
}

func newHTTPTransport(spec model.RemoteSpec) *httpTransport {
	return &httpTransport{
		baseURL:    spec.URL,
		headers:    spec.Headers,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (t *httpTransport) sendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := atomic.AddInt64(&t.nextID, 1)
	req := mcp.JSONRPCRequest{JSONRPC: "2.0", ID: id, Method: method}
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req.Params = b
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if t.sessionID != "" {
		httpReq.Header.Set("Mcp-Session-Id", t.sessionID)
	}
	for k, v := range t.headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, model.NewError(model.ErrTransportError, "http transport: %v", err).WithRetryable(true)
	}
	defer httpResp.Body.Close()

	if sid := httpResp.Header.Get("Mcp-Session-Id"); sid != "" {
		t.sessionID = sid
	}

	if httpResp.StatusCode >= 500 {
		return nil, model.NewError(model.ErrTransportError, "http status %d", httpResp.StatusCode).WithRetryable(true)
	}
	if httpResp.StatusCode >= 400 {
		return nil, model.NewError(model.ErrInternal, "http status %d", httpResp.StatusCode)
	}

	var resp rawResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, model.NewError(model.ErrTransportError, "decode response: %v", err).WithRetryable(true)
	}
	if resp.Error != nil {
		return nil, model.NewError(model.ErrInternal, "child error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return resp.Result, nil
}

func (t *httpTransport) Initialize(ctx context.Context) (mcp.InitializeResult, error) {
	raw, err := t.sendRequest(ctx, "initialize", mcp.InitializeParams{
		ProtocolVersion: clientProtocolVersion,
		ClientInfo:      mcp.ClientInfo{Name: "unicity-orchestrator", Version: "1.0.0"},
	})
	if err != nil {
		return mcp.InitializeResult{}, err
	}
	var result mcp.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return mcp.InitializeResult{}, err
	}
	return result, nil
}

func (t *httpTransport) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	raw, err := t.sendRequest(ctx, "tools/list", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Tools []mcp.Tool `json:"tools"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out.Tools, nil
}

func (t *httpTransport) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	raw, err := t.sendRequest(ctx, "prompts/list", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Prompts []mcp.Prompt `json:"prompts"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out.Prompts, nil
}

func (t *httpTransport) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	raw, err := t.sendRequest(ctx, "resources/list", nil)
	if err != nil {
		return nil, err
	}
	var out struct {
		Resources []mcp.Resource `json:"resources"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out.Resources, nil
}

func (t *httpTransport) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	raw, err := t.sendRequest(ctx, "tools/call", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *httpTransport) GetPrompt(ctx context.Context, name string, args map[string]string) (mcp.GetPromptResult, error) {
	raw, err := t.sendRequest(ctx, "prompts/get", map[string]any{"name": name, "arguments": args})
	if err != nil {
		return mcp.GetPromptResult{}, err
	}
	var out mcp.GetPromptResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return mcp.GetPromptResult{}, err
	}
	return out, nil
}

func (t *httpTransport) ReadResource(ctx context.Context, uri string) (any, error) {
	raw, err := t.sendRequest(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (t *httpTransport) Close() error { return nil }

// transportFactory builds the Transport for a service. It is a package
// variable so tests can substitute a fake transport without spawning a
// real process or opening a real HTTP connection.
var transportFactory = newTransport

func newTransport(ctx context.Context, svc model.Service) (Transport, error) {
	switch svc.Transport {
	case model.TransportStdio:
		return newStdioTransport(ctx, *svc.Spawn)
	case model.TransportHTTP:
		return newHTTPTransport(*svc.Remote), nil
	default:
		return nil, model.NewError(model.ErrConfigInvalid, "service %q: unknown transport %q", svc.Name, svc.Transport)
	}
}

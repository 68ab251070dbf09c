package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
)

// ServeStdio reads line-framed JSON-RPC requests from r and writes responses
// to w until r is exhausted or ctx is canceled. Each line is one request;
// notifications produce no output line.
func (s *MCP) ServeStdio(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req JSONRPCRequest
		if err := json.Unmarshal(line, &req); err != nil {
			if encErr := enc.Encode(s.createErrorResponse(nil, CodeParseError, "Parse error")); encErr != nil {
				return encErr
			}
			continue
		}

		resp := s.handleRequest(req)
		if resp.ID == nil && resp.Result == nil && resp.Error == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

package mcp

// Standard JSON-RPC error codes, plus the MCP-specific codes this server's
// elicitation coordinator relies on.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	// CodeElicitationDeclined covers declined, canceled, and expired
	// elicitations alike.
	CodeElicitationDeclined = -32001
	CodeNotFound            = -32002
	CodeURLRedirectRequired = -32042
)

func (s *MCP) createErrorResponse(id any, code int, message string) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
		},
	}
}

// createErrorResponseData attaches structured data to an error response, used
// for the Url elicitation flow's redirect target.
func (s *MCP) createErrorResponseData(id any, code int, message string, data any) JSONRPCResponse {
	resp := s.createErrorResponse(id, code, message)
	resp.Error.Data = data
	return resp
}

// Error lets a ToolHandler surface a specific JSON-RPC error code (and
// optional structured data) instead of the generic -32602 handleToolsCall
// falls back to. The execution coordinator returns one of these whenever a
// tool call fails for an elicitation reason (-32001/-32002/-32042).
type Error struct {
	Code    int
	Message string
	Data    any
}

func (e *Error) Error() string { return e.Message }


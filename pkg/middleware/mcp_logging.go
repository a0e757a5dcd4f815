package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/logging"
)

// maxMCPBodyBytes bounds how much of an MCP request is buffered for logging.
const maxMCPBodyBytes = 1 << 20

// MCPRequestLogger logs MCP JSON-RPC calls: the method, the tool name, its
// arguments with secrets redacted and the question shortened, and whether
// the call failed. Pass nil logger to disable logging.
func MCPRequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if logger == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxMCPBodyBytes))
			if err != nil {
				logger.Warn("Failed to read MCP request body", zap.String("error", logging.SanitizeError(err)))
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			var rpcReq jsonRPCRequest
			if err := json.Unmarshal(body, &rpcReq); err != nil {
				logger.Debug("MCP request is not a single JSON-RPC object", zap.Error(err))
			}
			requestID := GetRequestID(r.Context())

			logger.Debug("MCP request",
				zap.String("request_id", requestID),
				zap.String("method", rpcReq.Method),
				zap.String("tool", rpcReq.Params.Name),
				zap.Any("arguments", sanitizeArguments(rpcReq.Params.Arguments)),
			)

			recorder := &mcpResponseRecorder{ResponseWriter: w, body: &bytes.Buffer{}}
			start := time.Now()
			next.ServeHTTP(recorder, r)
			duration := time.Since(start)

			if rpcReq.Method != "tools/call" {
				return
			}

			var rpcResp jsonRPCResponse
			if err := json.Unmarshal(recorder.jsonPayload(), &rpcResp); err != nil {
				logger.Debug("MCP response is not a single JSON-RPC object", zap.Error(err))
				return
			}

			switch {
			case rpcResp.Error != nil:
				logger.Info("MCP tool call failed",
					zap.String("request_id", requestID),
					zap.String("tool", rpcReq.Params.Name),
					zap.Int("error_code", rpcResp.Error.Code),
					zap.String("error_message", rpcResp.Error.Message),
					zap.Duration("duration", duration))
			case rpcResp.Result.IsError:
				logger.Info("MCP tool returned an error result",
					zap.String("request_id", requestID),
					zap.String("tool", rpcReq.Params.Name),
					zap.Duration("duration", duration))
			default:
				logger.Debug("MCP tool call succeeded",
					zap.String("request_id", requestID),
					zap.String("tool", rpcReq.Params.Name),
					zap.Duration("duration", duration))
			}
		})
	}
}

type jsonRPCRequest struct {
	Method string `json:"method"`
	Params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	} `json:"params"`
}

type jsonRPCResponse struct {
	Result struct {
		IsError bool `json:"isError"`
	} `json:"result"`
	Error *jsonRPCError `json:"error"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// mcpResponseRecorder tees the response body so it can be inspected after
// the handler returns.
type mcpResponseRecorder struct {
	http.ResponseWriter
	body *bytes.Buffer
}

func (r *mcpResponseRecorder) Write(b []byte) (int, error) {
	if r.body.Len() < maxMCPBodyBytes {
		r.body.Write(b)
	}
	return r.ResponseWriter.Write(b)
}

func (r *mcpResponseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// jsonPayload returns the JSON body, unwrapping a single SSE data frame.
func (r *mcpResponseRecorder) jsonPayload() []byte {
	raw := bytes.TrimSpace(r.body.Bytes())
	if !strings.HasPrefix(r.Header().Get("Content-Type"), "text/event-stream") {
		return raw
	}
	for _, line := range bytes.Split(raw, []byte("\n")) {
		if data, ok := bytes.CutPrefix(line, []byte("data:")); ok {
			return bytes.TrimSpace(data)
		}
	}
	return nil
}

var sensitiveArgumentKeywords = []string{"password", "secret", "token", "key", "credential"}

// sanitizeArguments redacts sensitive fields and shortens long values.
// Questions go through logging.SanitizeQuestion.
func sanitizeArguments(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}

	result := make(map[string]any, len(args))
	for k, v := range args {
		lowerKey := strings.ToLower(k)
		if containsAny(lowerKey, sensitiveArgumentKeywords) {
			result[k] = logging.RedactedText
			continue
		}

		str, ok := v.(string)
		switch {
		case ok && lowerKey == "question":
			result[k] = logging.SanitizeQuestion(str)
		case ok:
			result[k] = logging.TruncateString(str, logging.MaxQuestionLogLength)
		default:
			result[k] = v
		}
	}
	return result
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

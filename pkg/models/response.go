package models

// AgentResponse is the JSON envelope returned for one question by both the
// HTTP endpoint and the MCP tool.
type AgentResponse struct {
	RequestID string           `json:"request_id"`
	Question  string           `json:"question"`
	Mode      Mode             `json:"mode"`
	SQL       string           `json:"sql,omitempty"`
	Answer    string           `json:"answer,omitempty"`
	Result    *QueryResult     `json:"result,omitempty"`
	Degraded  bool             `json:"degraded"`
	Error     *ErrorBody       `json:"error,omitempty"`
	TimingsMS map[string]int64 `json:"timings_ms,omitempty"`
}

// ErrorBody is the caller-safe part of a PipelineError.
type ErrorBody struct {
	Stage   string `json:"stage"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// NewAgentResponse builds the envelope. Error causes are never included.
func NewAgentResponse(res *PipelineResult) *AgentResponse {
	out := &AgentResponse{
		RequestID: res.RequestID,
		Question:  res.Question,
		Mode:      res.Mode,
		SQL:       res.SQL,
		Result:    res.Result,
		Degraded:  res.Degraded,
	}
	if res.Answer != nil {
		out.Answer = res.Answer.Text
	}
	if res.Err != nil {
		out.Error = &ErrorBody{
			Stage:   string(res.Err.Stage),
			Kind:    string(res.Err.Kind),
			Message: res.Err.Message,
		}
	}
	if len(res.StageDurations) > 0 {
		out.TimingsMS = make(map[string]int64, len(res.StageDurations))
		for state, d := range res.StageDurations {
			out.TimingsMS[string(state)] = d.Milliseconds()
		}
	}
	return out
}

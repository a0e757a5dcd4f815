package handlers

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/middleware"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/prompts"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/services"
)

// MaxQuestionLength bounds the question parameter, in characters.
const MaxQuestionLength = 2000

// DBAgentHandler serves GET /db_agent.
type DBAgentHandler struct {
	pipeline     services.Pipeline
	defaultMode  models.Mode
	renderLimits models.RenderLimits
	logger       *zap.Logger
}

// NewDBAgentHandler creates the question endpoint. renderLimits bound the
// table written for format=text.
func NewDBAgentHandler(pipeline services.Pipeline, defaultMode models.Mode, renderLimits models.RenderLimits, logger *zap.Logger) *DBAgentHandler {
	if defaultMode == "" {
		defaultMode = models.ModeAnswer
	}
	return &DBAgentHandler{
		pipeline:     pipeline,
		defaultMode:  defaultMode,
		renderLimits: renderLimits,
		logger:       logger.Named("db_agent"),
	}
}

// RegisterRoutes registers the handler on mux.
func (h *DBAgentHandler) RegisterRoutes(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("/db_agent", wrap(h))
}

// ServeHTTP answers ?question=...&mode=sql|rows|answer&format=json|text.
// Pipeline failures keep the JSON envelope and carry a status chosen by
// error kind; a degraded answer is still a 200.
func (h *DBAgentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		_ = ErrorResponse(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET /db_agent?question=...")
		return
	}

	query := r.URL.Query()
	question := strings.TrimSpace(query.Get("question"))
	format := strings.ToLower(strings.TrimSpace(query.Get("format")))
	requestID := middleware.GetRequestID(r.Context())

	if format != "" && format != "json" && format != "text" {
		h.writeResult(w, "json", invalidRequest(requestID, question, h.defaultMode, "format must be json or text"))
		return
	}

	mode, err := models.ParseMode(query.Get("mode"), h.defaultMode)
	if err != nil {
		h.writeResult(w, format, invalidRequest(requestID, question, h.defaultMode, "mode must be sql, rows or answer"))
		return
	}

	switch {
	case question == "":
		h.writeResult(w, format, invalidRequest(requestID, question, mode, "question is required"))
		return
	case utf8.RuneCountInString(question) > MaxQuestionLength:
		h.writeResult(w, format, invalidRequest(requestID, "", mode, "question is too long"))
		return
	}

	res := h.pipeline.Run(r.Context(), services.PipelineRequest{
		RequestID: requestID,
		Question:  question,
		Mode:      mode,
	})
	h.writeResult(w, format, res)
}

func (h *DBAgentHandler) writeResult(w http.ResponseWriter, format string, res *models.PipelineResult) {
	status := http.StatusOK
	if res.Failed() && res.Err != nil {
		status = StatusForKind(res.Err.Kind)
	}

	var err error
	if format == "text" {
		err = WriteText(w, status, prompts.RenderPlainText(res, h.renderLimits))
	} else {
		err = WriteJSON(w, status, models.NewAgentResponse(res))
	}
	if err != nil {
		h.logger.Error("Failed to write db_agent response",
			zap.String("request_id", res.RequestID),
			zap.Error(err))
	}
}

func invalidRequest(requestID, question string, mode models.Mode, detail string) *models.PipelineResult {
	return &models.PipelineResult{
		RequestID: requestID,
		Question:  question,
		Mode:      mode,
		State:     models.StateFailed,
		Err:       apperrors.Newf(apperrors.StageRequest, apperrors.KindInvalidRequest, nil, "%s", detail),
	}
}

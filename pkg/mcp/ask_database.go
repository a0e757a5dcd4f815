package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/middleware"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/services"
)

// AskDatabaseToolName is the name the tool is registered under.
const AskDatabaseToolName = "ask_database"

// AskDatabaseDeps are what the ask_database tool runs on.
type AskDatabaseDeps struct {
	Pipeline    services.Pipeline
	DefaultMode models.Mode
	Logger      *zap.Logger
}

// RegisterAskDatabaseTool adds ask_database, which runs one question through
// the pipeline and returns the same JSON envelope as GET /db_agent.
func RegisterAskDatabaseTool(s *Server, deps AskDatabaseDeps) {
	if deps.DefaultMode == "" {
		deps.DefaultMode = models.ModeAnswer
	}
	logger := s.logger
	if deps.Logger != nil {
		logger = deps.Logger.Named("mcp")
	}

	tool := mcp.NewTool(
		AskDatabaseToolName,
		mcp.WithDescription(
			"Answer a business question from the connected database. "+
				"The question is translated into one read-only SQL statement, executed with a row cap, "+
				"and summarized in plain English. "+
				"Use mode='sql' to get only the SQL, mode='rows' to get the result rows without a summary. "+
				"Example: ask_database(question='How many orders were placed in 2024?').",
		),
		mcp.WithString(
			"question",
			mcp.Required(),
			mcp.Description("The question in natural language"),
		),
		mcp.WithString(
			"mode",
			mcp.Description(fmt.Sprintf("How far to run: sql, rows or answer (default %s)", deps.DefaultMode)),
			mcp.Enum(string(models.ModeSQL), string(models.ModeRows), string(models.ModeAnswer)),
		),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithOpenWorldHintAnnotation(false),
	)

	s.RegisterTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		question, err := req.RequireString("question")
		if err != nil {
			return NewErrorResult("invalid_parameters", "parameter 'question' is required"), nil
		}
		question = strings.TrimSpace(question)
		if question == "" {
			return NewErrorResult("invalid_parameters", "parameter 'question' cannot be empty"), nil
		}

		var rawMode string
		if args, ok := req.Params.Arguments.(map[string]any); ok {
			rawMode, _ = args["mode"].(string)
		}
		mode, err := models.ParseMode(rawMode, deps.DefaultMode)
		if err != nil {
			return NewErrorResult("invalid_parameters", "parameter 'mode' must be sql, rows or answer"), nil
		}

		res := deps.Pipeline.Run(ctx, services.PipelineRequest{
			RequestID: middleware.GetRequestID(ctx),
			Question:  question,
			Mode:      mode,
		})

		body, err := json.Marshal(models.NewAgentResponse(res))
		if err != nil {
			logger.Error("Failed to encode ask_database result",
				zap.String("request_id", res.RequestID),
				zap.Error(err))
			return nil, fmt.Errorf("failed to encode result: %w", err)
		}

		result := mcp.NewToolResultText(string(body))
		result.IsError = res.Failed()
		return result, nil
	})
}

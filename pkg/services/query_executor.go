package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/audit"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
	sqlpkg "github.com/ekaya-inc/ekaya-dbagent/pkg/sql"
)

// QueryExecutor runs generated SQL behind the read-only guard and the
// datasource's privilege boundary.
type QueryExecutor interface {
	Execute(ctx context.Context, sqlText string, limits models.Limits) (*models.QueryResult, error)
}

type queryExecutor struct {
	ds      datasource.Datasource
	auditor *audit.SecurityAuditor
	logger  *zap.Logger
}

// NewQueryExecutor creates an executor over ds. auditor may be nil.
func NewQueryExecutor(ds datasource.Datasource, auditor *audit.SecurityAuditor, logger *zap.Logger) QueryExecutor {
	return &queryExecutor{
		ds:      ds,
		auditor: auditor,
		logger:  logger.Named("executor"),
	}
}

// Execute refuses anything but a single read-only statement before a
// connection is acquired, then runs the statement with the given limits.
func (e *queryExecutor) Execute(ctx context.Context, sqlText string, limits models.Limits) (*models.QueryResult, error) {
	normalized, err := sqlpkg.GuardReadOnly(sqlText)
	if err != nil {
		e.logger.Info("statement rejected by read-only guard",
			zap.String("sql", logging.SanitizeQuery(sqlText)),
			zap.String("reason", err.Error()))
		e.auditor.LogStatementRejected(ctx, sqlText, err.Error())
		return nil, guardError(err)
	}

	result, err := e.ds.QueryReadOnly(ctx, normalized, limits)
	if err != nil {
		e.logger.Info("query failed",
			zap.String("sql", logging.SanitizeQuery(normalized)),
			zap.String("kind", string(datasource.KindOf(err))),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fromDatasourceError(apperrors.StageExecuting, err)
	}

	e.logger.Debug("query executed",
		zap.Int("rows", result.RowCount),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("duration", result.Duration))
	e.auditor.LogQueryExecution(ctx, normalized, result.RowCount, result.Truncated)

	return result, nil
}

func guardError(err error) *apperrors.PipelineError {
	var roErr *sqlpkg.ReadOnlyError
	switch {
	case errors.Is(err, sqlpkg.ErrEmptyStatement):
		return apperrors.Newf(apperrors.StageExecuting, apperrors.KindSyntax, err, "the statement is empty")
	case errors.Is(err, sqlpkg.ErrMultipleStatements):
		return apperrors.Newf(apperrors.StageExecuting, apperrors.KindPermission, err, "multiple statements are not allowed")
	case errors.As(err, &roErr):
		return apperrors.Newf(apperrors.StageExecuting, apperrors.KindPermission, err, "%s", roErr.Reason)
	default:
		return apperrors.New(apperrors.StageExecuting, apperrors.KindPermission, err)
	}
}

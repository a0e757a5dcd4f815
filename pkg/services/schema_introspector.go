package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/glossary"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/logging"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/models"
)

// SchemaIntrospector reads the structure of the target database.
type SchemaIntrospector interface {
	// Describe takes a fresh snapshot of tables and columns. It never
	// mutates the database and never caches.
	Describe(ctx context.Context) (*models.SchemaContext, error)
}

// SchemaIntrospectorOptions narrow what is described.
type SchemaIntrospectorOptions struct {
	IncludeSchemas []string
	ExcludeSchemas []string
	MaxTables      int
	// SampleRows per table; zero skips sampling.
	SampleRows int
	// SampleTimeout bounds each sample query.
	SampleTimeout time.Duration
}

type schemaIntrospector struct {
	ds       datasource.Datasource
	glossary *glossary.Glossary
	opts     SchemaIntrospectorOptions
	logger   *zap.Logger
}

// NewSchemaIntrospector creates an introspector over ds. The glossary may be nil.
func NewSchemaIntrospector(ds datasource.Datasource, g *glossary.Glossary, opts SchemaIntrospectorOptions, logger *zap.Logger) SchemaIntrospector {
	return &schemaIntrospector{
		ds:       ds,
		glossary: g,
		opts:     opts,
		logger:   logger.Named("introspector"),
	}
}

func (s *schemaIntrospector) Describe(ctx context.Context) (*models.SchemaContext, error) {
	if s.ds == nil {
		return nil, apperrors.New(apperrors.StageIntrospecting, apperrors.KindConnection, errors.New("no datasource configured"))
	}

	if err := s.ds.Ping(ctx); err != nil {
		s.logger.Warn("datasource ping failed", zap.String("error", logging.SanitizeError(err)))
		retryable := datasource.KindOf(err) != datasource.KindCanceled
		return nil, apperrors.New(apperrors.StageIntrospecting, apperrors.KindConnection, err).WithRetryable(retryable)
	}

	tables, err := s.ds.DescribeSchema(ctx, datasource.DescribeOptions{
		IncludeSchemas: s.opts.IncludeSchemas,
		ExcludeSchemas: s.opts.ExcludeSchemas,
		MaxTables:      s.opts.MaxTables,
	})
	if err != nil {
		s.logger.Warn("describe schema failed", zap.String("error", logging.SanitizeError(err)))
		switch datasource.KindOf(err) {
		case datasource.KindConnection, datasource.KindTimeout, datasource.KindCanceled:
			return nil, fromDatasourceError(apperrors.StageIntrospecting, err)
		default:
			return nil, apperrors.New(apperrors.StageIntrospecting, apperrors.KindIntrospection, err)
		}
	}
	if len(tables) == 0 {
		return nil, apperrors.Newf(apperrors.StageIntrospecting, apperrors.KindIntrospection, nil,
			"no tables are visible to the configured login")
	}

	if s.opts.SampleRows > 0 {
		s.attachSamples(ctx, tables)
	}

	schema := &models.SchemaContext{
		Dialect:    s.ds.Dialect(),
		Tables:     tables,
		CapturedAt: time.Now().UTC(),
	}
	s.glossary.Apply(schema)

	s.logger.Debug("schema described",
		zap.Int("tables", len(schema.Tables)),
		zap.Int("terms", len(schema.Terms)))

	return schema, nil
}

// attachSamples adds sample rows to each table. A table whose sample fails
// is kept without one.
func (s *schemaIntrospector) attachSamples(ctx context.Context, tables []models.TableDescriptor) {
	for i := range tables {
		if ctx.Err() != nil {
			return
		}

		sampleCtx := ctx
		cancel := func() {}
		if s.opts.SampleTimeout > 0 {
			sampleCtx, cancel = context.WithTimeout(ctx, s.opts.SampleTimeout)
		}
		sample, err := s.ds.SampleRows(sampleCtx, tables[i], s.opts.SampleRows)
		cancel()

		if err != nil {
			s.logger.Debug("skipping sample rows",
				zap.String("table", tables[i].QualifiedName()),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}
		tables[i].Sample = sample
	}
}

package mssql

import (
	"context"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-dbagent/pkg/config"
)

func init() {
	datasource.Register(datasource.AdapterRegistration{
		Info: datasource.AdapterInfo{
			Type:        "mssql",
			DisplayName: "Microsoft SQL Server",
		},
		Open: func(_ context.Context, ds *config.DatasourceConfig, logger *zap.Logger) (datasource.Datasource, error) {
			cfg, err := FromDatasourceConfig(ds)
			if err != nil {
				return nil, err
			}
			return NewAdapter(cfg, logger)
		},
	})
}

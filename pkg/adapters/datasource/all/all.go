// Package all links every datasource adapter into the binary.
package all

import (
	_ "github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource/mssql"
	_ "github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource/mysql"
	_ "github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource/postgres"
	_ "github.com/ekaya-inc/ekaya-dbagent/pkg/adapters/datasource/sqlite"
)

// Package mysql registers the MySQL dialector and provider.
package mysql

import (
	"net"
	"strconv"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"go.uber.org/fx"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/tigerroll/salesync/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/salesync/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/salesync/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/salesync/pkg/batch/core/config"
)

const Type = "mysql"

func init() {
	gormadapter.RegisterDialector(Type, func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		return mysql.Open(ConnectionString(cfg)), nil
	})
}

// ConnectionString builds a go-sql-driver DSN. Times are parsed in UTC and
// multi-statement execution is enabled for migration scripts.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	dc := mysqldriver.NewConfig()
	dc.User = c.User
	dc.Passwd = c.Password
	dc.Net = "tcp"
	dc.Addr = net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	dc.DBName = c.Database
	dc.ParseTime = true
	dc.Loc = time.UTC
	dc.MultiStatements = true
	dc.Params = map[string]string{"charset": "utf8mb4"}
	return dc.FormatDSN()
}

// NewProvider returns the MySQL provider.
func NewProvider(cfg *config.Config) database.DBProvider {
	return gormadapter.NewBaseProvider(cfg, Type)
}

var Module = fx.Provide(fx.Annotate(NewProvider, fx.ResultTags(`group:"db_providers"`)))

package gorm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	dbconfig "github.com/tigerroll/salesync/pkg/batch/adapter/database/config"
	"github.com/tigerroll/salesync/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/salesync/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/salesync/pkg/batch/adapter/database/gorm/sqlite"
)

func TestConnectionString(t *testing.T) {
	pg := dbconfig.DatabaseConfig{
		Type:     "postgres",
		Host:     "pg_host",
		Port:     5432,
		Database: "pg_db",
		User:     "pg_user",
		Password: "pg_password",
		Sslmode:  "require",
	}
	assert.Equal(t, "host=pg_host port=5432 user=pg_user password=pg_password dbname=pg_db sslmode=require", postgres.ConnectionString(pg))

	pg.Sslmode = ""
	assert.Contains(t, postgres.ConnectionString(pg), "sslmode=disable")

	my := dbconfig.DatabaseConfig{
		Type:     "mysql",
		Host:     "mysql_host",
		Port:     3306,
		Database: "mysql_db",
		User:     "mysql_user",
		Password: "mysql_password",
	}
	dsn := mysql.ConnectionString(my)
	assert.Contains(t, dsn, "mysql_user:mysql_password@tcp(mysql_host:3306)/mysql_db?")
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "multiStatements=true")
	assert.Contains(t, dsn, "charset=utf8mb4")

	assert.Equal(t, "/path/to/sqlite.db", sqlite.ConnectionString(dbconfig.DatabaseConfig{Type: "sqlite", Database: "/path/to/sqlite.db"}))
}

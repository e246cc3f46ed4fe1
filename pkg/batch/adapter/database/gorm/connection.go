package gorm

import (
	"database/sql"

	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/salesync/pkg/batch/adapter/database/config"
)

// Connection is a named gorm connection.
type Connection struct {
	name string
	db   *gorm.DB
	cfg  dbconfig.DatabaseConfig
}

// NewConnection wraps db as a named connection.
func NewConnection(name string, db *gorm.DB, cfg dbconfig.DatabaseConfig) *Connection {
	return &Connection{name: name, db: db, cfg: cfg}
}

func (c *Connection) Name() string                    { return c.name }
func (c *Connection) Type() string                    { return c.cfg.Type }
func (c *Connection) Config() dbconfig.DatabaseConfig { return c.cfg }

// DB returns the gorm handle.
func (c *Connection) DB() *gorm.DB { return c.db }

func (c *Connection) SQLDB() (*sql.DB, error) { return c.db.DB() }

func (c *Connection) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

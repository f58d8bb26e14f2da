package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
)

// Options describes the MySQL connection of the booking store.
type Options struct {
	User string
	Pass string
	Host string
	Port string
	Name string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration

	// Migrate creates missing booking tables after connecting.
	Migrate bool
}

func (o Options) driverConfig() *mysql.Config {
	cfg := mysql.NewConfig()
	cfg.User = o.User
	cfg.Passwd = o.Pass
	cfg.Net = "tcp"
	cfg.Addr = net.JoinHostPort(o.Host, o.Port)
	cfg.DBName = o.Name
	// DATETIME columns scan into time.Time, always in UTC
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	return cfg
}

func (o Options) applyPool(db *sql.DB) {
	db.SetMaxOpenConns(o.MaxOpenConns)
	idle := o.MaxIdleConns
	if idle > o.MaxOpenConns && o.MaxOpenConns > 0 {
		idle = o.MaxOpenConns
	}
	db.SetMaxIdleConns(idle)
	db.SetConnMaxLifetime(o.ConnMaxLifetime)
}

// Open connects to MySQL, verifies the connection and, when o.Migrate is
// set, brings the schema up to date.
func Open(ctx context.Context, o Options) (*sql.DB, error) {
	conn, err := mysql.NewConnector(o.driverConfig())
	if err != nil {
		return nil, fmt.Errorf("mysql config: %w", err)
	}
	db := sql.OpenDB(conn)
	o.applyPool(db)

	timeout := o.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mysql ping %s: %w", o.driverConfig().Addr, err)
	}
	if o.Migrate {
		if err := Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return db, nil
}

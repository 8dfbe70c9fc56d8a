package conn

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"agriaid/config"
)

func dsn(cfg config.MySQLConfig, withDB bool) string {
	c := mysql.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	c.ParseTime = true
	if withDB {
		c.DBName = cfg.Name
	}
	return c.FormatDSN()
}

// NewMySQL opens the history database, creating it first when missing.
func NewMySQL(ctx context.Context, cfg config.MySQLConfig) (*sql.DB, error) {
	adminDB, err := sql.Open("mysql", dsn(cfg, false))
	if err != nil {
		return nil, err
	}
	if err := adminDB.PingContext(ctx); err != nil {
		adminDB.Close()
		return nil, err
	}
	if _, err := adminDB.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS `"+cfg.Name+"` DEFAULT CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci"); err != nil {
		adminDB.Close()
		return nil, err
	}
	adminDB.Close()

	db, err := sql.Open("mysql", dsn(cfg, true))
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxOpenConns(10)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

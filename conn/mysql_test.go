package conn

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"

	"agriaid/config"
)

func TestDSN(t *testing.T) {
	cfg := config.MySQLConfig{User: "root", Password: "pw", Host: "db", Port: "3306", Name: "agriaid"}
	if got := dsn(cfg, true); got != "root:pw@tcp(db:3306)/agriaid?parseTime=true" {
		t.Fatalf("dsn = %s", got)
	}
	if got := dsn(cfg, false); got != "root:pw@tcp(db:3306)/?parseTime=true" {
		t.Fatalf("admin dsn = %s", got)
	}
}

func TestNewMySQL_Integration(t *testing.T) {
	_ = godotenv.Load("../.env")
	if os.Getenv("DB_HOST") == "" {
		t.Skip("DB_HOST not set; skipping MySQL integration test")
	}
	cfg, err := config.Load("../.env")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := NewMySQL(ctx, cfg.MySQL)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()
}

package database

import (
	"strings"
	"testing"

	"github.com/iliyamo/grouptrip/internal/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DBConfig{User: "app", Pass: "p@ss", Host: "db", Port: "3306", Name: "grouptrip"})
	for _, want := range []string{"app:p@ss@tcp(db:3306)/grouptrip", "parseTime=true", "charset=utf8mb4"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("dsn %q lacks %q", dsn, want)
		}
	}
}

package database

import (
	"testing"

	gomysql "github.com/go-sql-driver/mysql"
)

func TestMySQLDSN(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantDB  string
		wantErr bool
	}{
		{"plain", "pos:secret@tcp(127.0.0.1:3306)/restopos", "restopos", false},
		{"keeps params", "pos:secret@tcp(db:3306)/fonda?charset=utf8mb4&loc=Local", "fonda", false},
		{"garbage", "not a dsn", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn, err := mysqlDSN(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("mysqlDSN() err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			c, err := gomysql.ParseDSN(dsn)
			if err != nil {
				t.Fatalf("result %q does not parse: %v", dsn, err)
			}
			if !c.ClientFoundRows || !c.ParseTime || c.DBName != tt.wantDB || c.User != "pos" {
				t.Errorf("config = %+v", c)
			}
		})
	}
}

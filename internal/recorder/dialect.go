package recorder

import (
	"fmt"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

// Dialect selects SQL flavour and driver.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// ParseDialect validates a configured driver name.
func ParseDialect(s string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(strings.TrimSpace(s))); d {
	case DialectSQLite, DialectPostgres, DialectMySQL:
		return d, nil
	case "postgresql", "pg":
		return DialectPostgres, nil
	}
	return "", fmt.Errorf("unsupported database driver %q", s)
}

// driverName is the database/sql driver registered for the dialect.
func (d Dialect) driverName() string { return string(d) }

// dsn builds the connection string. An empty dbName connects to the
// server's maintenance database, used for create-database bootstrap.
func (d Dialect) dsn(o Options, dbName string) string {
	switch d {
	case DialectPostgres:
		if dbName == "" {
			dbName = "postgres"
		}
		sslmode := o.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			o.Host, o.Port, o.User, o.Password, dbName, sslmode)
	case DialectMySQL:
		cfg := mysql.NewConfig()
		cfg.User = o.User
		cfg.Passwd = o.Password
		cfg.Net = "tcp"
		cfg.Addr = net.JoinHostPort(o.Host, o.Port)
		cfg.DBName = dbName
		cfg.Collation = "utf8mb4_unicode_ci"
		cfg.Params = map[string]string{"charset": "utf8mb4"}
		return cfg.FormatDSN()
	}
	return o.SQLitePath
}

// createDatabase returns the statement creating the database, or "" when
// the dialect has no separate database object.
func (d Dialect) createDatabase(name string) string {
	switch d {
	case DialectPostgres:
		return "CREATE DATABASE " + pq.QuoteIdentifier(name) + " ENCODING 'UTF8'"
	case DialectMySQL:
		return "CREATE DATABASE IF NOT EXISTS `" + strings.ReplaceAll(name, "`", "``") + "` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci"
	}
	return ""
}

// schema returns the idempotent DDL owned by the gateway.
func (d Dialect) schema() []string {
	switch d {
	case DialectMySQL:
		return []string{
			`CREATE TABLE IF NOT EXISTS stock_basic (
				id           INT AUTO_INCREMENT PRIMARY KEY,
				stock_code   VARCHAR(20) NOT NULL,
				stock_name   VARCHAR(100),
				exchange     VARCHAR(10) NOT NULL,
				market       VARCHAR(10) NOT NULL,
				market_type  VARCHAR(10),
				listing_date DATE,
				update_time  TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
				UNIQUE KEY unique_stock (stock_code, market)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
			`CREATE TABLE IF NOT EXISTS stock_daily (
				id                   BIGINT AUTO_INCREMENT PRIMARY KEY,
				stock_code           VARCHAR(10) NOT NULL,
				trade_date           DATE NOT NULL,
				open_price           DECIMAL(10,3),
				high_price           DECIMAL(10,3),
				low_price            DECIMAL(10,3),
				close_price          DECIMAL(10,3),
				previous_close_price DECIMAL(10,3),
				volume               BIGINT,
				amount               DECIMAL(20,3),
				turnover_rate        DECIMAL(10,3),
				market               VARCHAR(10) NOT NULL,
				update_time          TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
				INDEX idx_stock_code (stock_code),
				INDEX idx_trade_date (trade_date),
				INDEX idx_stock_date (stock_code, trade_date),
				UNIQUE KEY unique_daily_record (stock_code, trade_date, market)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		}
	case DialectPostgres:
		return []string{
			`CREATE TABLE IF NOT EXISTS stock_basic (
				id           BIGSERIAL PRIMARY KEY,
				stock_code   VARCHAR(20) NOT NULL,
				stock_name   VARCHAR(100),
				exchange     VARCHAR(10) NOT NULL,
				market       VARCHAR(10) NOT NULL,
				market_type  VARCHAR(10),
				listing_date DATE,
				update_time  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				CONSTRAINT unique_stock UNIQUE (stock_code, market)
			)`,
			`CREATE TABLE IF NOT EXISTS stock_daily (
				id                   BIGSERIAL PRIMARY KEY,
				stock_code           VARCHAR(10) NOT NULL,
				trade_date           DATE NOT NULL,
				open_price           NUMERIC(10,3),
				high_price           NUMERIC(10,3),
				low_price            NUMERIC(10,3),
				close_price          NUMERIC(10,3),
				previous_close_price NUMERIC(10,3),
				volume               BIGINT,
				amount               NUMERIC(20,3),
				turnover_rate        NUMERIC(10,3),
				market               VARCHAR(10) NOT NULL,
				update_time          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				CONSTRAINT unique_daily_record UNIQUE (stock_code, trade_date, market)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_stock_code ON stock_daily(stock_code)`,
			`CREATE INDEX IF NOT EXISTS idx_trade_date ON stock_daily(trade_date)`,
			`CREATE INDEX IF NOT EXISTS idx_stock_date ON stock_daily(stock_code, trade_date)`,
		}
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS stock_basic (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			stock_code   TEXT NOT NULL,
			stock_name   TEXT,
			exchange     TEXT NOT NULL,
			market       TEXT NOT NULL,
			market_type  TEXT,
			listing_date TEXT,
			update_time  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (stock_code, market)
		)`,
		`CREATE TABLE IF NOT EXISTS stock_daily (
			id                   INTEGER PRIMARY KEY AUTOINCREMENT,
			stock_code           TEXT NOT NULL,
			trade_date           TEXT NOT NULL,
			open_price           DECIMAL(10,3),
			high_price           DECIMAL(10,3),
			low_price            DECIMAL(10,3),
			close_price          DECIMAL(10,3),
			previous_close_price DECIMAL(10,3),
			volume               INTEGER,
			amount               DECIMAL(20,3),
			turnover_rate        DECIMAL(10,3),
			market               TEXT NOT NULL,
			update_time          TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (stock_code, trade_date, market)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_code ON stock_daily(stock_code)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_date ON stock_daily(trade_date)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_date ON stock_daily(stock_code, trade_date)`,
	}
}

// upsert builds a multi-row insert of n rows that updates non-key columns
// in place on a key conflict. Placeholders are "?" and must be rebound.
func (d Dialect) upsert(table string, cols, keys []string, n int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	b.WriteString(strings.Join(cols, ", "))
	b.WriteString(") VALUES ")
	row := "(" + strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",") + ")"
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(row)
	}

	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	var sets []string
	for _, c := range cols {
		if isKey[c] {
			continue
		}
		if d == DialectMySQL {
			sets = append(sets, fmt.Sprintf("%s = VALUES(%s)", c, c))
		} else {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	sets = append(sets, "update_time = CURRENT_TIMESTAMP")

	if d == DialectMySQL {
		b.WriteString(" ON DUPLICATE KEY UPDATE ")
	} else {
		b.WriteString(" ON CONFLICT (")
		b.WriteString(strings.Join(keys, ", "))
		b.WriteString(") DO UPDATE SET ")
	}
	b.WriteString(strings.Join(sets, ", "))
	return b.String()
}

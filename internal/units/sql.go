package units

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	go_ora "github.com/sijms/go-ora/v2"

	"github.com/nmslite/inventory-agent/internal/datarow"
	"github.com/nmslite/inventory-agent/internal/resultcode"
	"github.com/nmslite/inventory-agent/internal/task"
)

const (
	ParamQuery     = "query"
	ParamKeyColumn = "keyColumn"
	ParamDatabase  = "database"

	AttrQueryResult = "queryResult"

	ProtocolSQLServer = "sqlserver"
	ProtocolPostgres  = "postgres"
	ProtocolMySQL     = "mysql"
	ProtocolOracle    = "oracle"
)

// SQLConfig holds the SQL unit settings.
type SQLConfig struct {
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
	// Encrypt is passed to SQL Server as the encrypt option.
	Encrypt string
	// SSLMode is passed to PostgreSQL as sslmode.
	SSLMode string
}

// rowSource is the part of *sql.Rows the unit reads.
type rowSource interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

type querier interface {
	Query(ctx context.Context, query string) (rowSource, error)
	Close() error
}

type sqlConn struct {
	db *sql.DB
}

func (c *sqlConn) Query(ctx context.Context, query string) (rowSource, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *sqlConn) Close() error {
	return c.db.Close()
}

// SQLQuery runs the query parameter against SQL Server, PostgreSQL, MySQL
// or Oracle and reports one record per result row.
type SQLQuery struct {
	cfg    SQLConfig
	logger *slog.Logger
}

func NewSQLQuery(cfg SQLConfig, logger *slog.Logger) *SQLQuery {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.Encrypt == "" {
		cfg.Encrypt = "disable"
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "prefer"
	}
	return &SQLQuery{cfg: cfg, logger: logger.With("unit", "sqlQuery")}
}

func (u *SQLQuery) Name() string { return "sqlQuery" }

// dsn returns the driver name and connection string for t.
func (u *SQLQuery) dsn(t *task.Task) (string, string, error) {
	creds := t.Target.Credentials
	database, _ := t.Param(ParamDatabase)

	switch strings.ToLower(t.Target.Protocol) {
	case "", ProtocolSQLServer:
		port := t.Target.Port
		if port == 0 {
			port = 1433
		}
		query := url.Values{}
		if database != "" {
			query.Add("database", database)
		}
		query.Add("encrypt", u.cfg.Encrypt)
		query.Add("connection timeout", strconv.Itoa(int(u.cfg.ConnectTimeout.Seconds())))
		dsn := &url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(sqlServerUser(creds), creds.Password),
			Host:     net.JoinHostPort(t.Target.Host, strconv.Itoa(port)),
			RawQuery: query.Encode(),
		}
		return "sqlserver", dsn.String(), nil

	case ProtocolPostgres:
		port := t.Target.Port
		if port == 0 {
			port = 5432
		}
		query := url.Values{}
		query.Add("sslmode", u.cfg.SSLMode)
		query.Add("connect_timeout", strconv.Itoa(int(u.cfg.ConnectTimeout.Seconds())))
		dsn := &url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(creds.Username, creds.Password),
			Host:     net.JoinHostPort(t.Target.Host, strconv.Itoa(port)),
			Path:     "/" + database,
			RawQuery: query.Encode(),
		}
		return "pgx", dsn.String(), nil

	case ProtocolMySQL:
		port := t.Target.Port
		if port == 0 {
			port = 3306
		}
		mc := mysql.NewConfig()
		mc.User = creds.Username
		mc.Passwd = creds.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(t.Target.Host, strconv.Itoa(port))
		mc.DBName = database
		mc.Timeout = u.cfg.ConnectTimeout
		return "mysql", mc.FormatDSN(), nil

	case ProtocolOracle:
		// the database parameter names the service
		if database == "" {
			return "", "", fmt.Errorf("oracle requires the %s parameter", ParamDatabase)
		}
		port := t.Target.Port
		if port == 0 {
			port = 1521
		}
		return "oracle", go_ora.BuildUrl(t.Target.Host, port, database, creds.Username, creds.Password, nil), nil
	}
	return "", "", fmt.Errorf("unsupported database protocol %q", t.Target.Protocol)
}

func sqlServerUser(creds task.Credentials) string {
	if creds.Domain != "" {
		return creds.Domain + `\` + creds.Username
	}
	return creds.Username
}

func (u *SQLQuery) Connect(ctx context.Context, t *task.Task) (task.Connection, resultcode.Code) {
	logger := u.logger.With("task_id", t.TaskID, "host", t.Target.Host)
	if t.Target.Host == "" {
		logger.Error("No target host supplied")
		return nil, resultcode.NullConnectionObject
	}

	driver, dsn, err := u.dsn(t)
	if err != nil {
		logger.Error("Cannot build connection string", "error", err)
		return nil, resultcode.InvalidParameterType
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		logger.Error("Invalid connection string", "error", err)
		return nil, resultcode.InvalidParameterType
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, u.cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		if isSQLLoginError(err) {
			logger.Error("Database login failed", "error", err)
			return nil, resultcode.LoginFailed
		}
		logger.Error("Database connection failed", "error", err)
		return nil, resultcode.HostConnectFailed
	}
	return &sqlConn{db: db}, resultcode.Success
}

func isSQLLoginError(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && (myErr.Number == 1044 || myErr.Number == 1045) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Login failed") ||
		strings.Contains(msg, "ORA-01017") ||
		strings.Contains(msg, "ORA-28000") ||
		strings.Contains(msg, "password authentication failed") ||
		strings.Contains(msg, "SQLSTATE 28P01") ||
		strings.Contains(msg, "SQLSTATE 28000")
}

func (u *SQLQuery) Collect(ctx context.Context, t *task.Task, conn task.Connection, buf *datarow.Buffer) resultcode.Code {
	logger := u.logger.With("task_id", t.TaskID)

	q, ok := conn.(querier)
	if !ok || q == nil {
		logger.Error("Connection object is null")
		return resultcode.NullConnectionObject
	}
	if code := requireAttributes(t, logger); !code.IsSuccess() {
		return code
	}
	query, _ := t.Param(ParamQuery)
	if strings.TrimSpace(query) == "" {
		logger.Error("Missing script parameter", "parameter", ParamQuery)
		return resultcode.ScriptParameterMissing
	}
	if !buf.Mapped(AttrQueryResult) {
		logger.Error("Expected attribute name not found in attribute map", "attribute", AttrQueryResult)
		return resultcode.NullAttributeSet
	}
	keyColumn, _ := t.Param(ParamKeyColumn)

	if u.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.cfg.QueryTimeout)
		defer cancel()
	}

	start := time.Now()
	records, err := u.query(ctx, q, query, keyColumn)
	if err != nil {
		logger.Error("Database query failed", "error", err, "elapsed", time.Since(start))
		return resultcode.SQLServerDatabaseQueryError
	}
	logger.Debug("Database query complete", "rows", len(records), "elapsed", time.Since(start))

	if len(records) == 0 {
		return resultcode.Success
	}
	if err := buf.AppendRecords(AttrQueryResult, records); err != nil {
		logger.Error("Failed to append query result", "error", err)
	}
	return resultcode.Success
}

// query runs query and turns each row into a record keyed by keyColumn, or
// by the 1-based row number when keyColumn is empty or absent.
func (u *SQLQuery) query(ctx context.Context, q querier, query, keyColumn string) ([]datarow.Record, error) {
	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}
	keyIdx := -1
	for i, c := range columns {
		if keyColumn != "" && strings.EqualFold(c, keyColumn) {
			keyIdx = i
		}
	}

	var records []datarow.Record
	values := make([]sql.NullString, len(columns))
	dest := make([]any, len(columns))
	for i := range values {
		dest[i] = &values[i]
	}
	for n := 1; rows.Next(); n++ {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", n, err)
		}
		key := strconv.Itoa(n)
		if keyIdx >= 0 && values[keyIdx].Valid {
			key = values[keyIdx].String
		}
		rec := datarow.NewRecord(key)
		for i, c := range columns {
			if i == keyIdx {
				continue
			}
			rec.Set(c, values[i].String)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

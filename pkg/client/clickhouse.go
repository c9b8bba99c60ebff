package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/Slach/systemlogs-timeline/pkg/config"
	"github.com/Slach/systemlogs-timeline/pkg/logentry"
	"github.com/Slach/systemlogs-timeline/pkg/timerange"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ClickHouseFetcher answers the fetch contract straight from a unified logs table:
//
//	id String, source LowCardinality(String), type String, subtype String, level String,
//	timestamp DateTime64(3), user_id Int64, byuser_id Int64, group_id Int64, message_id Int64,
//	session_id String, trace_id String, ip String, email String, raw String, text String
type ClickHouseFetcher struct {
	config  config.Context
	version string
	now     func() time.Time

	mu sync.Mutex
	db *sql.DB
}

func NewClickHouseFetcher(cfg config.Context, version string) *ClickHouseFetcher {
	return &ClickHouseFetcher{
		config:  cfg,
		version: version,
		now:     time.Now,
	}
}

const entryColumns = "id, source, type, subtype, level, timestamp, user_id, byuser_id, group_id, message_id, session_id, trace_id, raw, text"

func (c *ClickHouseFetcher) Fetch(ctx context.Context, params Params) (*Response, error) {
	db, err := c.conn()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp := &Response{}
	if params.Summary {
		resp.Summaries, err = c.fetchSummaries(ctx, db, params)
	} else {
		var query string
		var args []interface{}
		query, args, err = c.buildEntriesQuery(params)
		if err == nil {
			resp.Logs, err = queryEntries(ctx, db, query, args)
		}
	}
	if err != nil {
		return nil, err
	}

	stats, _ := json.Marshal(map[string]interface{}{
		"rows":       len(resp.Summaries) + len(resp.Logs),
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	resp.Stats = stats
	return resp, nil
}

func (c *ClickHouseFetcher) table() string {
	return quoteIdent(c.config.Database) + "." + quoteIdent(c.config.Table)
}

func quoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// buildWhereClause renders the row filters shared by every query mode.
func (c *ClickHouseFetcher) buildWhereClause(p Params) (string, []interface{}, error) {
	var conds []string
	var args []interface{}

	startTime, err := timerange.Start(p.Start, c.now())
	if err != nil {
		return "", nil, err
	}
	conds = append(conds, "timestamp >= ?")
	args = append(args, startTime)

	// In summary mode the end bound is a cursor on whole traces, applied in HAVING.
	if !p.End.IsZero() && !p.Summary {
		conds = append(conds, "timestamp <= ?")
		args = append(args, p.End)
	}

	in := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		conds = append(conds, fmt.Sprintf("%s IN (%s)", column, placeholders(len(values))))
		for _, v := range values {
			args = append(args, v)
		}
	}
	eq := func(column string, value interface{}) {
		conds = append(conds, column+" = ?")
		args = append(args, value)
	}

	var sources []string
	for _, s := range p.Sources {
		sources = append(sources, s.String())
	}
	in("source", sources)
	in("type", p.Types)
	in("subtype", p.Subtypes)
	in("level", p.Levels)

	if p.Search != "" {
		conds = append(conds, "(positionCaseInsensitive(text, ?) > 0 OR positionCaseInsensitive(raw, ?) > 0)")
		args = append(args, p.Search, p.Search)
	}
	if p.UserID != 0 {
		conds = append(conds, "(user_id = ? OR byuser_id = ?)")
		args = append(args, p.UserID, p.UserID)
	}
	if p.GroupID != 0 {
		eq("group_id", p.GroupID)
	}
	if p.MessageID != 0 {
		eq("message_id", p.MessageID)
	}
	if p.TraceID != "" {
		eq("trace_id", p.TraceID)
	}
	if p.SessionID != "" {
		eq("session_id", p.SessionID)
	}
	if p.IP != "" {
		eq("ip", p.IP)
	}
	if p.Email != "" {
		eq("email", p.Email)
	}

	return strings.Join(conds, " AND "), args, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func order(direction string) string {
	if direction == "forward" {
		return "ASC"
	}
	return "DESC"
}

func (c *ClickHouseFetcher) buildEntriesQuery(p Params) (string, []interface{}, error) {
	where, args, err := c.buildWhereClause(p)
	if err != nil {
		return "", nil, err
	}
	// Trace detail is always chronological.
	direction := order(p.Direction)
	if p.TraceID != "" {
		direction = "ASC"
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY timestamp %s, id %s", entryColumns, c.table(), where, direction, direction)
	if p.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, p.Limit)
	}
	return query, args, nil
}

func (c *ClickHouseFetcher) buildSummaryQuery(p Params) (string, []interface{}, error) {
	where, args, err := c.buildWhereClause(p)
	if err != nil {
		return "", nil, err
	}
	query := fmt.Sprintf(`SELECT
	if(trace_id = '', concat('~', id), trace_id) AS group_key,
	any(trace_id) AS trace,
	argMin(id, timestamp) AS first_id,
	count() AS child_count,
	groupUniqArray(source) AS sources,
	arrayStringConcat(groupUniqArrayIf(3)(JSONExtractString(raw, 'endpoint'), source = 'api'), ', ') AS route,
	min(timestamp) AS first_ts,
	max(timestamp) AS last_ts
FROM %s
WHERE %s
GROUP BY group_key`, c.table(), where)

	if !p.End.IsZero() {
		if p.Direction == "forward" {
			query += "\nHAVING first_ts > ?"
		} else {
			query += "\nHAVING first_ts < ?"
		}
		args = append(args, p.End)
	}
	query += fmt.Sprintf("\nORDER BY first_ts %s", order(p.Direction))
	if p.Limit > 0 {
		query += "\nLIMIT ?"
		args = append(args, p.Limit)
	}
	return query, args, nil
}

type summaryRow struct {
	traceID string
	firstID string
	count   uint64
	sources []string
	route   string
	firstTS time.Time
	lastTS  time.Time
}

func (c *ClickHouseFetcher) fetchSummaries(ctx context.Context, db *sql.DB, p Params) ([]logentry.TraceSummary, error) {
	query, args, err := c.buildSummaryQuery(p)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("query", query).Msg("summary query")
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "summary query")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("can't close summary query")
		}
	}()

	var groups []summaryRow
	for rows.Next() {
		var groupKey string
		var r summaryRow
		if err := rows.Scan(&groupKey, &r.traceID, &r.firstID, &r.count, &r.sources, &r.route, &r.firstTS, &r.lastTS); err != nil {
			return nil, errors.Wrap(err, "can't scan summary row")
		}
		groups = append(groups, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "summary rows")
	}
	if len(groups) == 0 {
		return []logentry.TraceSummary{}, nil
	}

	ids := make([]interface{}, 0, len(groups))
	for _, g := range groups {
		ids = append(ids, g.firstID)
	}
	firstQuery := fmt.Sprintf("SELECT %s FROM %s WHERE id IN (%s)", entryColumns, c.table(), placeholders(len(ids)))
	firstLogs, err := queryEntries(ctx, db, firstQuery, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[logentry.FlexString]logentry.LogEntry, len(firstLogs))
	for _, e := range firstLogs {
		byID[e.ID] = e
	}

	summaries := make([]logentry.TraceSummary, 0, len(groups))
	for _, g := range groups {
		first, ok := byID[logentry.FlexString(g.firstID)]
		if !ok {
			log.Warn().Str("id", g.firstID).Str("trace_id", g.traceID).Msg("first log of trace vanished between queries")
			continue
		}
		summary := logentry.TraceSummary{
			TraceID:        g.traceID,
			FirstLog:       first,
			ChildCount:     int(g.count),
			RouteSummary:   g.route,
			FirstTimestamp: g.firstTS,
			LastTimestamp:  g.lastTS,
		}
		for _, name := range g.sources {
			var s logentry.Source
			_ = s.UnmarshalText([]byte(name))
			summary.Sources = append(summary.Sources, s)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func queryEntries(ctx context.Context, db *sql.DB, query string, args []interface{}) ([]logentry.LogEntry, error) {
	log.Debug().Str("query", query).Msg("entries query")
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "entries query")
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("can't close entries query")
		}
	}()

	entries := []logentry.LogEntry{}
	for rows.Next() {
		var e logentry.LogEntry
		var id, source, raw string
		if err := rows.Scan(&id, &source, &e.Type, &e.Subtype, &e.Level, &e.Timestamp,
			&e.UserID, &e.ByUserID, &e.GroupID, &e.MessageID, &e.SessionID, &e.TraceID, &raw, &e.Text); err != nil {
			return nil, errors.Wrap(err, "can't scan log row")
		}
		e.ID = logentry.FlexString(id)
		_ = e.Source.UnmarshalText([]byte(source))
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &e.Raw); err != nil {
				log.Warn().Err(err).Str("id", id).Msg("can't decode raw payload")
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "log rows")
	}
	return entries, nil
}

func (c *ClickHouseFetcher) conn() (*sql.DB, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		return c.db, nil
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c.db, nil
}

func (c *ClickHouseFetcher) connect() error {
	var tlsConfig *tls.Config

	// Enable TLS if secure is true or if certificates are provided
	if c.config.Secure || (c.config.TLSCert != "" && c.config.TLSKey != "") || c.config.TLSCa != "" || c.config.TLSVerify {
		tlsConfig = &tls.Config{
			InsecureSkipVerify: !c.config.TLSVerify,
		}

		if c.config.TLSCert != "" && c.config.TLSKey != "" {
			cert, err := tls.LoadX509KeyPair(c.config.TLSCert, c.config.TLSKey)
			if err != nil {
				return errors.Wrap(err, "failed to load client certificate")
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}

		if c.config.TLSCa != "" {
			caCert, err := os.ReadFile(c.config.TLSCa)
			if err != nil {
				return errors.Wrap(err, "failed to read CA certificate")
			}
			caCertPool := x509.NewCertPool()
			caCertPool.AppendCertsFromPEM(caCert)
			tlsConfig.RootCAs = caCertPool
		}
	}

	options := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)},
		Auth: clickhouse.Auth{
			Database: c.config.Database,
			Username: c.config.Username,
			Password: c.config.Password,
		},
		TLS: tlsConfig,
	}
	options.ClientInfo.Products = append(options.ClientInfo.Products, struct{ Name, Version string }{
		"systemlogs-timeline",
		c.version,
	})

	options.Protocol = clickhouse.Native
	if c.config.Protocol == "http" {
		options.Protocol = clickhouse.HTTP
	}

	db := clickhouse.OpenDB(options)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return errors.Wrapf(err, "can't connect to clickhouse %s", c.config.Host)
	}

	c.db = db
	return nil
}

func (c *ClickHouseFetcher) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil {
		err := c.db.Close()
		c.db = nil
		return err
	}
	return nil
}

// Package clickhouse is the ClickHouse store backend. Edge aggregation is
// pushed down to the server as a GROUP BY query.
package clickhouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"NetSankey/internal/config"
	"NetSankey/internal/engine/aggregator"
	"NetSankey/internal/model"
	"NetSankey/internal/store"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
)

const tableName = "flow_records"

const createTableStatement = `
CREATE TABLE IF NOT EXISTS flow_records (
    Timestamp   DateTime64(6),
    SrcIP       String,
    DstIP       String,
    Protocol    LowCardinality(String),
    Size        UInt64,
    DstPort     Nullable(UInt16)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY Timestamp;
`

// connectTimeout bounds the retries of the initial connection.
const connectTimeout = 30 * time.Second

func init() {
	store.Register("clickhouse", func(cfg config.StoreConfig) (store.Store, error) {
		return New(cfg.ClickHouse)
	})
}

// Store writes flow records to the flow_records table.
type Store struct {
	conn driver.Conn
}

var (
	_ store.Store          = (*Store)(nil)
	_ store.EdgeAggregator = (*Store)(nil)
)

// New connects to ClickHouse and makes sure the table exists.
func New(cfg config.ClickHouseConfig) (*Store, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Info("Successfully connected to ClickHouse and ensured table exists.")

	return &Store{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: false,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = connectTimeout
	err = backoff.RetryNotify(func() error {
		return conn.Ping(context.Background())
	}, b, func(err error, d time.Duration) {
		log.WithError(err).Warnf("ClickHouse at %s not reachable, retrying in %s", addr, d)
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// Insert writes records in a single batch.
func (s *Store) Insert(ctx context.Context, records []model.FlowRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+tableName)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, rec := range records {
		err = batch.Append(
			rec.Timestamp,
			rec.SrcIP,
			rec.DstIP,
			string(rec.Protocol),
			rec.Size,
			rec.DstPort,
		)
		if err != nil {
			return fmt.Errorf("failed to append record to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}

	log.Debugf("Wrote %d records to ClickHouse", len(records))
	return nil
}

// buildWhere returns the WHERE clause and its arguments for filter.
func buildWhere(filter model.Filter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	clauses = append(clauses, "SrcIP NOT IN (?)", "DstIP NOT IN (?)", "SrcIP != ''", "DstIP != ''")
	args = append(args, model.PlaceholderAddrs, model.PlaceholderAddrs)

	if filter.Focus != "" {
		clauses = append(clauses, "(SrcIP = ? OR DstIP = ?)")
		args = append(args, filter.Focus, filter.Focus)
	}

	return " WHERE " + strings.Join(clauses, " AND "), args
}

func scanQuery(filter model.Filter) (string, []interface{}) {
	where, args := buildWhere(filter)
	return "SELECT Timestamp, SrcIP, DstIP, Protocol, Size, DstPort FROM " + tableName + where + " ORDER BY Timestamp", args
}

func hostsQuery() (string, []interface{}) {
	where, args := buildWhere(model.Filter{})
	q := fmt.Sprintf(`
		SELECT DISTINCT host FROM (
			SELECT SrcIP AS host FROM %[1]s%[2]s
			UNION ALL
			SELECT DstIP AS host FROM %[1]s%[2]s
		)`, tableName, where)
	return q, append(args, args...)
}

func aggregateQuery(filter model.Filter, key model.GroupKey) (string, []interface{}) {
	where, args := buildWhere(filter)

	var queryBuilder strings.Builder
	queryBuilder.WriteString("SELECT SrcIP, DstIP, ")
	if key == model.KeyPairProtocol {
		queryBuilder.WriteString("Protocol AS EdgeProtocol, ")
	} else {
		// Must not be aliased to Protocol, which groupUniqArray reads.
		queryBuilder.WriteString("'' AS EdgeProtocol, ")
	}
	queryBuilder.WriteString("sum(Size) AS TotalBytes, groupUniqArray(Protocol) AS Protocols, groupUniqArray(DstPort) AS Ports FROM ")
	queryBuilder.WriteString(tableName)
	queryBuilder.WriteString(where)
	if key == model.KeyPairProtocol {
		queryBuilder.WriteString(" GROUP BY SrcIP, DstIP, Protocol")
	} else {
		queryBuilder.WriteString(" GROUP BY SrcIP, DstIP")
	}
	return queryBuilder.String(), args
}

// Scan streams matching records ordered by timestamp.
func (s *Store) Scan(ctx context.Context, filter model.Filter, fn func(model.FlowRecord) error) error {
	query, args := scanQuery(filter)
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec   model.FlowRecord
			proto string
		)
		if err := rows.Scan(&rec.Timestamp, &rec.SrcIP, &rec.DstIP, &proto, &rec.Size, &rec.DstPort); err != nil {
			return fmt.Errorf("failed to scan record: %w", err)
		}
		rec.Protocol = model.Protocol(proto)
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Hosts returns the distinct endpoints of all valid records.
func (s *Store) Hosts(ctx context.Context) ([]string, error) {
	query, args := hostsQuery()
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var hosts []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("failed to scan host: %w", err)
		}
		hosts = append(hosts, h)
	}
	return hosts, rows.Err()
}

// AggregateEdges groups records on the server.
func (s *Store) AggregateEdges(ctx context.Context, filter model.Filter, key model.GroupKey) ([]model.DirectedEdge, error) {
	query, args := aggregateQuery(filter, key)
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var edges []model.DirectedEdge
	for rows.Next() {
		var (
			e         model.DirectedEdge
			proto     string
			protocols []string
			ports     []uint16
		)
		if err := rows.Scan(&e.Source, &e.Destination, &proto, &e.TotalBytes, &protocols, &ports); err != nil {
			return nil, fmt.Errorf("failed to scan aggregation result: %w", err)
		}
		e.Protocol = model.Protocol(proto)
		e.Protocols = make([]model.Protocol, 0, len(protocols))
		for _, p := range protocols {
			e.Protocols = append(e.Protocols, model.Protocol(p))
		}
		e.Ports = ports
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return aggregator.Normalize(edges), nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

// Close closes the connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

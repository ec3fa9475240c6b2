package config

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	_ "github.com/go-sql-driver/mysql"

	"github.com/lordbasex/go-radius-client/radiusclient"
)

// ServerRow is one row of the server-list table: address, shared secret,
// and the per-server retransmission knobs. Disabled rows are skipped
// entirely rather than loaded and then toggled off.
type ServerRow struct {
	Host           string
	Port           int
	Secret         string
	InitialTimeout time.Duration
	MaxTimeout     time.Duration
	MaxDuration    time.Duration
	MaxRetries     int
	Enabled        bool
}

// LoadServersFromMySQL opens dsn, reads every enabled row of table, and
// returns them as ServerSettings ready for Client.AddServer. The
// connection is closed before returning; this is a one-shot load, not a
// held pool, since the server list changes rarely compared to query
// traffic.
func LoadServersFromMySQL(ctx context.Context, dsn, table string) ([]radiusclient.ServerSettings, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("config: opening mysql: %w", err)
	}
	defer db.Close()

	query := fmt.Sprintf(
		`SELECT host, port, secret, initial_timeout_ms, max_timeout_ms, max_duration_ms, max_retries, enabled FROM %s`,
		table,
	)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("config: querying %s: %w", table, err)
	}
	defer rows.Close()

	var out []radiusclient.ServerSettings
	for rows.Next() {
		var r ServerRow
		var initialMS, maxMS, durMS int64
		if err := rows.Scan(&r.Host, &r.Port, &r.Secret, &initialMS, &maxMS, &durMS, &r.MaxRetries, &r.Enabled); err != nil {
			return nil, fmt.Errorf("config: scanning %s row: %w", table, err)
		}
		if !r.Enabled {
			continue
		}
		addr := &net.UDPAddr{IP: net.ParseIP(r.Host), Port: r.Port}
		if addr.IP == nil {
			resolved, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", r.Host, r.Port))
			if err != nil {
				return nil, fmt.Errorf("config: resolving %s:%d: %w", r.Host, r.Port, err)
			}
			addr = resolved
		}
		out = append(out, radiusclient.ServerSettings{
			Addr:   addr,
			Secret: []byte(r.Secret),
			Policy: radiusclient.RetransmitPolicy{
				InitialTimeout: time.Duration(initialMS) * time.Millisecond,
				MaxTimeout:     time.Duration(maxMS) * time.Millisecond,
				MaxDuration:    time.Duration(durMS) * time.Millisecond,
				MaxRetries:     r.MaxRetries,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", table, err)
	}
	return out, nil
}

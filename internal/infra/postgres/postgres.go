package postgres

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/lo"
	"github.com/sifan077/clicklink/config"
)

const (
	defaultDialTimeout = 5 * time.Second
	applicationName    = "clicklink"
)

// NewPool opens the pgx pool the Postgres store uses for counter updates and
// pings it once so a bad DSN fails at startup rather than on the first click.
func NewPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// PoolConfig builds a pgxpool config from cfg.
func PoolConfig(cfg config.PostgresConfig) (*pgxpool.Config, error) {
	tuning, err := parseTuning(cfg)
	if err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(ConnString(cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	if tuning.maxConns > 0 {
		poolCfg.MaxConns = tuning.maxConns
	}
	if tuning.minConns > 0 {
		poolCfg.MinConns = tuning.minConns
	}
	if tuning.maxLifetime > 0 {
		poolCfg.MaxConnLifetime = tuning.maxLifetime
	}
	if tuning.maxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = tuning.maxIdleTime
	}
	if tuning.healthCheck > 0 {
		poolCfg.HealthCheckPeriod = tuning.healthCheck
	}
	return poolCfg, nil
}

// ConnString renders cfg as a postgres:// URL, filling in local defaults.
func ConnString(cfg config.PostgresConfig) string {
	u := url.URL{
		Scheme: "postgres",
		Host: net.JoinHostPort(
			lo.CoalesceOrEmpty(cfg.Host, "localhost"),
			strconv.Itoa(lo.CoalesceOrEmpty(cfg.Port, 5432)),
		),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": {lo.CoalesceOrEmpty(cfg.SSLMode, "disable")}}.Encode(),
	}
	switch {
	case cfg.User != "" && cfg.Password != "":
		u.User = url.UserPassword(cfg.User, cfg.Password)
	case cfg.User != "":
		u.User = url.User(cfg.User)
	}
	return u.String()
}

// poolTuning holds the pool settings shared by pgxpool and the GORM sql.DB.
type poolTuning struct {
	maxConns    int32
	minConns    int32
	maxLifetime time.Duration
	maxIdleTime time.Duration
	healthCheck time.Duration
}

// parseTuning rejects unparseable durations instead of ignoring them.
func parseTuning(cfg config.PostgresConfig) (poolTuning, error) {
	t := poolTuning{maxConns: cfg.MaxConns, minConns: cfg.MinConns}

	for _, d := range []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"max_conn_lifetime", cfg.MaxConnLifetime, &t.maxLifetime},
		{"max_conn_idle_time", cfg.MaxConnIdleTime, &t.maxIdleTime},
		{"health_check_period", cfg.HealthCheckPeriod, &t.healthCheck},
	} {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return poolTuning{}, fmt.Errorf("postgres: %s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	return t, nil
}

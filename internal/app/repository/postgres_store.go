package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/sifan077/clicklink/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	incrementVisitsSQL = `UPDATE links SET visit_count = visit_count + $1 WHERE code = $2 RETURNING visit_count`

	hourlyCreatedSQL = `SELECT EXTRACT(HOUR FROM to_timestamp(created_at) AT TIME ZONE 'UTC')::int AS hour, COUNT(*) AS count FROM links GROUP BY 1`
)

// RowQuerier is satisfied by *pgxpool.Pool and *pgx.Conn.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps one row per short code in the links table. GORM owns
// the schema, the conditional insert and reads; the counter update goes
// through pgx as a single UPDATE ... RETURNING so it is never split into a
// read and a write.
type PostgresStore struct {
	db   *gorm.DB
	pool RowQuerier
}

// NewPostgresStore returns a Store backed by Postgres.
func NewPostgresStore(db *gorm.DB, pool RowQuerier) *PostgresStore {
	return &PostgresStore{db: db, pool: pool}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) ConditionalPut(ctx context.Context, link *model.Link) (bool, error) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "code"}},
			DoNothing: true,
		}).
		Create(link)
	if result.Error != nil {
		return false, unavailable("postgres: conditional put", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *PostgresStore) Get(ctx context.Context, code string) (*model.Link, error) {
	var link model.Link
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, unavailable("postgres: get", err)
	}
	return &link, nil
}

func (s *PostgresStore) Increment(ctx context.Context, code string, field model.Field, delta int64) (int64, error) {
	if err := checkField(field); err != nil {
		return 0, err
	}

	var value int64
	if err := s.pool.QueryRow(ctx, incrementVisitsSQL, delta, code).Scan(&value); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrLinkNotFound
		}
		return 0, unavailable("postgres: increment", err)
	}
	return value, nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]model.Link, error) {
	return s.list(ctx, "created_at DESC, code", limit)
}

func (s *PostgresStore) Top(ctx context.Context, limit int) ([]model.Link, error) {
	return s.list(ctx, "visit_count DESC, code", limit)
}

func (s *PostgresStore) Summary(ctx context.Context) (model.Summary, error) {
	var summary model.Summary
	err := s.db.WithContext(ctx).
		Model(&model.Link{}).
		Select("COUNT(*) AS total_links, COALESCE(SUM(visit_count), 0) AS total_visits").
		Scan(&summary).Error
	if err != nil {
		return model.Summary{}, unavailable("postgres: summary", err)
	}
	return summary, nil
}

func (s *PostgresStore) HourlyCreated(ctx context.Context) (model.HourlyCounts, error) {
	var (
		counts model.HourlyCounts
		rows   []struct {
			Hour  int
			Count int64
		}
	)
	if err := s.db.WithContext(ctx).Raw(hourlyCreatedSQL).Scan(&rows).Error; err != nil {
		return counts, unavailable("postgres: hourly created", err)
	}
	for _, row := range rows {
		if row.Hour >= 0 && row.Hour < len(counts) {
			counts[row.Hour] = row.Count
		}
	}
	return counts, nil
}

func (s *PostgresStore) list(ctx context.Context, order string, limit int) ([]model.Link, error) {
	var result []model.Link
	if err := s.db.WithContext(ctx).
		Order(order).
		Limit(clampLimit(limit)).
		Find(&result).Error; err != nil {
		return nil, unavailable(fmt.Sprintf("postgres: list by %s", order), err)
	}
	return result, nil
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// sessionRow stores a whole record as JSONB under its code.
type sessionRow struct {
	Code      string `gorm:"primaryKey;size:16"`
	Data      string `gorm:"type:jsonb;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (sessionRow) TableName() string { return "abluka_sessions" }

type Postgres struct {
	db   *gorm.DB
	sql  *sql.DB
	pool *pgxpool.Pool
	log  *zap.Logger
}

// OpenPostgres connects through a pgx pool and migrates the sessions table.
func OpenPostgres(ctx context.Context, dsn string, log *zap.Logger) (*Postgres, error) {
	if log == nil {
		log = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		_ = sqlDB.Close()
		pool.Close()
		return nil, fmt.Errorf("gorm open: %w", err)
	}

	if err := db.WithContext(ctx).AutoMigrate(&sessionRow{}); err != nil {
		_ = sqlDB.Close()
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("postgres store ready")
	return &Postgres{db: db, sql: sqlDB, pool: pool, log: log}, nil
}

func (p *Postgres) Create(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	row := sessionRow{Code: rec.Code, Data: string(data)}
	err = p.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrExists
	}
	return err
}

func (p *Postgres) Get(ctx context.Context, code string) (Record, error) {
	var row sessionRow
	err := p.db.WithContext(ctx).First(&row, "code = ?", code).Error
	if err != nil {
		return Record{}, translate(err)
	}
	return decode(row)
}

// Update locks the row for the merge so concurrent patches never lose fields.
func (p *Postgres) Update(ctx context.Context, code string, patch Patch) (Record, error) {
	var merged Record
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row sessionRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "code = ?", code).Error; err != nil {
			return translate(err)
		}
		rec, err := decode(row)
		if err != nil {
			return err
		}
		merged = rec.Merge(patch)

		data, err := json.Marshal(merged)
		if err != nil {
			return err
		}
		return tx.Model(&row).Updates(map[string]any{"data": string(data)}).Error
	})
	if err != nil {
		return Record{}, err
	}
	return merged, nil
}

func (p *Postgres) Delete(ctx context.Context, code string) error {
	res := p.db.WithContext(ctx).Delete(&sessionRow{}, "code = ?", code)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) Close() error {
	err := p.sql.Close()
	p.pool.Close()
	return err
}

func decode(row sessionRow) (Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(row.Data), &rec); err != nil {
		return Record{}, fmt.Errorf("decode session %s: %w", row.Code, err)
	}
	rec.Code = row.Code
	return rec, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

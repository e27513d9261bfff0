// Package journal сохраняет уведомления сервиса в PostgreSQL.
package journal

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/mmeshcher/crowdfund-system/internal/event"
	"github.com/mmeshcher/crowdfund-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// saveTimeout ограничивает время одной записи в журнал.
const saveTimeout = 5 * time.Second

// PostgresJournal ведёт журнал уведомлений в PostgreSQL. Журнал только
// пополняется: записи не изменяются и не удаляются.
type PostgresJournal struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresJournal создаёт журнал и инициализирует схему БД через миграции.
func NewPostgresJournal(dsn string, logger *zap.Logger) (*PostgresJournal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	j := &PostgresJournal{pool: pool, logger: logger}

	if err := j.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return j, nil
}

func (j *PostgresJournal) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(j.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (j *PostgresJournal) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Если ошибка контекста — выходим сразу
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		// Ретраи полезны для Serialization Failure и Deadlocks,
		// с переподключением pgxpool справляется сам.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

		// Если это не pg-ошибка, но сетевая
		if isConnectionError(err) {
			if i < len(delays) {
				time.Sleep(delays[i])
				continue
			}
		}

		break
	}
	return err
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (j *PostgresJournal) Close() error {
	j.pool.Close()
	return nil
}

// Save сохраняет уведомление в журнал.
func (j *PostgresJournal) Save(ctx context.Context, evt event.Event) error {
	payload, err := json.Marshal(evt.Data)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	return j.withRetry(ctx, func() error {
		_, err := j.pool.Exec(ctx,
			`INSERT INTO notifications (event_type, payload, created_at) VALUES ($1, $2, $3)`,
			string(evt.Type), payload, evt.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert notification: %w", err)
		}
		return nil
	})
}

// HandleEvent сохраняет уведомление, полученное из шины. Ошибка записи
// логируется и не прерывает доставку остальных уведомлений.
func (j *PostgresJournal) HandleEvent(evt event.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := j.Save(ctx, evt); err != nil {
		j.logger.Warn("failed to journal notification",
			zap.String("type", string(evt.Type)),
			zap.Error(err),
		)
	}
}

// Recent возвращает последние уведомления журнала, свежие первыми.
func (j *PostgresJournal) Recent(ctx context.Context, limit int) ([]model.Notification, error) {
	rows, err := j.pool.Query(ctx,
		`SELECT id, event_type, payload, created_at
		 FROM notifications
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select notifications: %w", err)
	}
	defer rows.Close()

	var res []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.Type, &n.Payload, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		res = append(res, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

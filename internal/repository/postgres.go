// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/mpetrenko/loyalty-system/internal/model"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrUserExists возвращается при попытке создать пользователя с уже существующим идентификатором.
var (
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound возвращается, если пользователь не найден.
	ErrUserNotFound = errors.New("user not found")
	// ErrRewardNotFound возвращается, если вознаграждение не найдено.
	ErrRewardNotFound = errors.New("reward not found")
	// ErrInsufficientPoints возвращается при попытке списания, превышающего баланс.
	ErrInsufficientPoints = errors.New("insufficient points")
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
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

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
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

// withRetry повторяет операцию при взаимоблокировках, сбоях сериализации и сетевых ошибках.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			if pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected {
				if i < len(delays) {
					time.Sleep(delays[i])
					continue
				}
			}
		}

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
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// CreateUser создаёт профиль пользователя с нулевым балансом и ролью участника.
// В качестве содержимого QR-кода используется идентификатор субъекта.
func (r *PostgresRepository) CreateUser(ctx context.Context, id, email string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, qr_code, role) VALUES ($1, $2, $1, $3)`,
		id, email, string(model.RoleMember),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrUserExists, id)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// EnsureUser создаёт профиль пользователя, если он ещё не существует.
// Используется при первом входе через социального провайдера.
func (r *PostgresRepository) EnsureUser(ctx context.Context, id, email string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, qr_code, role) VALUES ($1, $2, $1, $3)
		 ON CONFLICT (id) DO NOTHING`,
		id, email, string(model.RoleMember),
	)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}

// GetUserByID возвращает профиль пользователя по идентификатору субъекта.
func (r *PostgresRepository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, email, points, qr_code, role, created_at FROM users WHERE id = $1`,
		id,
	)

	var u model.User
	var role string
	err := row.Scan(&u.ID, &u.Email, &u.Points, &u.QRCode, &role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	u.Role = model.Role(role)

	return &u, nil
}

// ListRewards возвращает все вознаграждения каталога, включая неактивные.
func (r *PostgresRepository) ListRewards(ctx context.Context) ([]model.Reward, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, description, points_cost, is_active
		 FROM rewards
		 ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("select rewards: %w", err)
	}
	defer rows.Close()

	var rewards []model.Reward
	for rows.Next() {
		var rw model.Reward
		if err := rows.Scan(&rw.ID, &rw.Name, &rw.Description, &rw.PointsCost, &rw.IsActive); err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		rewards = append(rewards, rw)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return rewards, nil
}

// CreateReward добавляет вознаграждение в каталог и возвращает его идентификатор.
func (r *PostgresRepository) CreateReward(ctx context.Context, name, description string, pointsCost int64, isActive bool) (string, error) {
	id := uuid.NewString()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO rewards (id, name, description, points_cost, is_active) VALUES ($1, $2, $3, $4, $5)`,
		id, name, description, pointsCost, isActive,
	)
	if err != nil {
		return "", fmt.Errorf("insert reward: %w", err)
	}

	return id, nil
}

// UpdateReward применяет частичное обновление: поля патча со значением nil
// остаются нетронутыми за счёт COALESCE.
func (r *PostgresRepository) UpdateReward(ctx context.Context, id string, patch model.RewardPatch) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE rewards
		 SET name = COALESCE($2, name),
		     description = COALESCE($3, description),
		     points_cost = COALESCE($4, points_cost),
		     is_active = COALESCE($5, is_active)
		 WHERE id = $1`,
		id, patch.Name, patch.Description, patch.PointsCost, patch.IsActive,
	)
	if err != nil {
		return fmt.Errorf("update reward: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrRewardNotFound
	}

	return nil
}

// DeleteReward безусловно удаляет вознаграждение из каталога.
// Записи журнала хранят идентификатор вознаграждения без внешнего ключа,
// поэтому история списаний переживает удаление позиции.
func (r *PostgresRepository) DeleteReward(ctx context.Context, id string) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM rewards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reward: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		return ErrRewardNotFound
	}

	return nil
}

// Earn начисляет баллы пользователю: запись журнала и увеличение баланса
// выполняются в одной транзакции. Возвращает идентификатор записи журнала.
func (r *PostgresRepository) Earn(ctx context.Context, userID string, points int64) (string, error) {
	var txID string
	err := r.withRetry(ctx, func() error {
		var err error
		txID, err = r.earn(ctx, userID, points)
		return err
	})
	return txID, err
}

func (r *PostgresRepository) earn(ctx context.Context, userID string, points int64) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	txID := uuid.NewString()

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, type, points) VALUES ($1, $2, $3, $4)`,
		txID, userID, string(model.TransactionEarned), points,
	)
	if err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}

	cmdTag, err := tx.Exec(ctx,
		`UPDATE users SET points = points + $2 WHERE id = $1`,
		userID, points,
	)
	if err != nil {
		return "", fmt.Errorf("increment balance: %w", err)
	}

	// Пользователь не найден — откатываем вместе с записью журнала.
	if cmdTag.RowsAffected() == 0 {
		return "", ErrUserNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit tx: %w", err)
	}

	return txID, nil
}

// Redeem списывает стоимость вознаграждения с баланса пользователя.
// Строка пользователя блокируется на время транзакции, поэтому параллельные
// списания сериализуются и баланс не может уйти в минус.
func (r *PostgresRepository) Redeem(ctx context.Context, userID, rewardID string) (string, error) {
	var txID string
	err := r.withRetry(ctx, func() error {
		var err error
		txID, err = r.redeem(ctx, userID, rewardID)
		return err
	})
	return txID, err
}

func (r *PostgresRepository) redeem(ctx context.Context, userID, rewardID string) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var balance int64
	err = tx.QueryRow(ctx,
		`SELECT points FROM users WHERE id = $1 FOR UPDATE`,
		userID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("lock user for update: %w", err)
	}

	var cost int64
	err = tx.QueryRow(ctx,
		`SELECT points_cost FROM rewards WHERE id = $1`,
		rewardID,
	).Scan(&cost)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrRewardNotFound
		}
		return "", fmt.Errorf("get reward cost: %w", err)
	}

	if balance < cost {
		return "", ErrInsufficientPoints
	}

	txID := uuid.NewString()

	_, err = tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, reward_id, type, points) VALUES ($1, $2, $3, $4, $5)`,
		txID, userID, rewardID, string(model.TransactionRedeemed), cost,
	)
	if err != nil {
		return "", fmt.Errorf("insert transaction: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE users SET points = points - $2 WHERE id = $1`,
		userID, cost,
	)
	if err != nil {
		return "", fmt.Errorf("decrement balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("commit tx: %w", err)
	}

	return txID, nil
}

// GetSummary возвращает агрегированные показатели по пользователям и журналу операций.
func (r *PostgresRepository) GetSummary(ctx context.Context) (*model.Summary, error) {
	var s model.Summary

	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(points), 0) FROM users`,
	).Scan(&s.TotalUsers, &s.TotalPointsInCirculation)
	if err != nil {
		return nil, fmt.Errorf("aggregate users: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM transactions`,
	).Scan(&s.TotalTransactions)
	if err != nil {
		return nil, fmt.Errorf("count transactions: %w", err)
	}

	return &s, nil
}

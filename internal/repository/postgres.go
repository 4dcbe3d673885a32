// Package repository содержит реализацию доступа к данным в PostgreSQL.
package repository

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/skillmarket-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrInsufficientBalance возвращается, если на счёте недостаточно токенов для списания.
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientAllowance возвращается, если разрешённый лимит меньше суммы списания.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	// ErrCourseNotFound возвращается, если курс с указанным идентификатором не существует.
	ErrCourseNotFound = errors.New("course not found")
	// ErrCourseInactive возвращается при попытке купить деактивированный курс.
	ErrCourseInactive = errors.New("course is not active")
	// ErrSelfPurchase возвращается при попытке преподавателя купить собственный курс.
	ErrSelfPurchase = errors.New("instructor cannot purchase own course")
	// ErrAlreadyPurchased возвращается при повторной покупке курса тем же студентом.
	ErrAlreadyPurchased = errors.New("course already purchased")
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

// withRetry повторяет транзакцию при дедлоках и ошибках сериализации.
func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 1 * time.Second}

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

// parseNumeric разбирает значение колонки NUMERIC, прочитанное как текст.
func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("parse numeric value %q", s)
	}
	return v, nil
}

// addEvent добавляет запись в outbox-журнал в рамках текущей транзакции.
func addEvent(ctx context.Context, tx pgx.Tx, eventType model.EventType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO outbox_events (event_type, payload) VALUES ($1, $2)`,
		string(eventType), data,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	return nil
}

// creditBalance увеличивает баланс счёта, создавая строку при необходимости.
func creditBalance(ctx context.Context, tx pgx.Tx, account string, amount *big.Int) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO balances (account, balance) VALUES ($1, $2::numeric)
		 ON CONFLICT (account) DO UPDATE SET balance = balances.balance + EXCLUDED.balance`,
		account, amount.String(),
	)
	if err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}

// lockBalance блокирует строку баланса счёта и возвращает текущее значение.
// Для счёта без строки возвращается ноль.
func lockBalance(ctx context.Context, tx pgx.Tx, account string) (*big.Int, error) {
	var raw string
	err := tx.QueryRow(ctx,
		`SELECT balance::text FROM balances WHERE account = $1 FOR UPDATE`,
		account,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("lock balance: %w", err)
	}
	return parseNumeric(raw)
}

// CreditTokenPurchase атомарно зачисляет эмитированные токены на счёт покупателя
// и добавляет оплату в резерв нативной валюты.
func (r *PostgresRepository) CreditTokenPurchase(ctx context.Context, account string, payment, minted *big.Int) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE native_reserve SET reserve = reserve + $1::numeric WHERE id = 1`,
		payment.String(),
	)
	if err != nil {
		return fmt.Errorf("update native reserve: %w", err)
	}

	if err := creditBalance(ctx, tx, account, minted); err != nil {
		return err
	}

	err = addEvent(ctx, tx, model.EventTokensPurchased, map[string]string{
		"account": account,
		"payment": payment.String(),
		"minted":  minted.String(),
	})
	if err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetBalance возвращает баланс счёта в единицах токена. Для неизвестного счёта — ноль.
func (r *PostgresRepository) GetBalance(ctx context.Context, account string) (*big.Int, error) {
	var raw string
	err := r.pool.QueryRow(ctx,
		`SELECT balance::text FROM balances WHERE account = $1`,
		account,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("get balance: %w", err)
	}

	return parseNumeric(raw)
}

// GetTotalSupply возвращает суммарную эмиссию токена как сумму всех балансов.
func (r *PostgresRepository) GetTotalSupply(ctx context.Context) (*big.Int, error) {
	var raw string
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(balance), 0)::text FROM balances`,
	).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("sum balances: %w", err)
	}

	return parseNumeric(raw)
}

// SetAllowance устанавливает разрешённый лимит списания, полностью перезаписывая
// прежнее значение. Семантика именно перезаписи, не приращения: вызывающие на неё
// полагаются.
func (r *PostgresRepository) SetAllowance(ctx context.Context, owner, spender string, amount *big.Int) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO allowances (owner, spender, amount) VALUES ($1, $2, $3::numeric)
		 ON CONFLICT (owner, spender) DO UPDATE SET amount = EXCLUDED.amount`,
		owner, spender, amount.String(),
	)
	if err != nil {
		return fmt.Errorf("set allowance: %w", err)
	}
	return nil
}

// GetAllowance возвращает разрешённый лимит списания. Для несуществующей пары — ноль.
func (r *PostgresRepository) GetAllowance(ctx context.Context, owner, spender string) (*big.Int, error) {
	var raw string
	err := r.pool.QueryRow(ctx,
		`SELECT amount::text FROM allowances WHERE owner = $1 AND spender = $2`,
		owner, spender,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return big.NewInt(0), nil
		}
		return nil, fmt.Errorf("get allowance: %w", err)
	}

	return parseNumeric(raw)
}

// Transfer переводит токены между счетами. Строка отправителя блокируется,
// чтобы параллельные переводы не увели баланс в минус.
func (r *PostgresRepository) Transfer(ctx context.Context, from, to string, amount *big.Int) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		balance, err := lockBalance(ctx, tx, from)
		if err != nil {
			return err
		}

		if balance.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}

		_, err = tx.Exec(ctx,
			`UPDATE balances SET balance = balance - $2::numeric WHERE account = $1`,
			from, amount.String(),
		)
		if err != nil {
			return fmt.Errorf("debit balance: %w", err)
		}

		if err := creditBalance(ctx, tx, to, amount); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// TransferFrom списывает токены со счёта владельца в пределах разрешённого лимита
// и зачисляет их получателю. Лимит и баланс уменьшаются в одной транзакции.
func (r *PostgresRepository) TransferFrom(ctx context.Context, owner, spender, to string, amount *big.Int) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		if err := spendAllowance(ctx, tx, owner, spender, amount); err != nil {
			return err
		}

		balance, err := lockBalance(ctx, tx, owner)
		if err != nil {
			return err
		}
		if balance.Cmp(amount) < 0 {
			return ErrInsufficientBalance
		}

		_, err = tx.Exec(ctx,
			`UPDATE balances SET balance = balance - $2::numeric WHERE account = $1`,
			owner, amount.String(),
		)
		if err != nil {
			return fmt.Errorf("debit balance: %w", err)
		}

		if err := creditBalance(ctx, tx, to, amount); err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// spendAllowance блокирует строку лимита, проверяет достаточность и уменьшает лимит.
func spendAllowance(ctx context.Context, tx pgx.Tx, owner, spender string, amount *big.Int) error {
	var raw string
	err := tx.QueryRow(ctx,
		`SELECT amount::text FROM allowances WHERE owner = $1 AND spender = $2 FOR UPDATE`,
		owner, spender,
	).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInsufficientAllowance
		}
		return fmt.Errorf("lock allowance: %w", err)
	}

	allowance, err := parseNumeric(raw)
	if err != nil {
		return err
	}

	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}

	_, err = tx.Exec(ctx,
		`UPDATE allowances SET amount = amount - $3::numeric WHERE owner = $1 AND spender = $2`,
		owner, spender, amount.String(),
	)
	if err != nil {
		return fmt.Errorf("spend allowance: %w", err)
	}

	return nil
}

// WithdrawNativeReserve обнуляет резерв нативной валюты и возвращает снятую сумму.
func (r *PostgresRepository) WithdrawNativeReserve(ctx context.Context) (*big.Int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var raw string
	err = tx.QueryRow(ctx,
		`SELECT reserve::text FROM native_reserve WHERE id = 1 FOR UPDATE`,
	).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("lock native reserve: %w", err)
	}

	reserve, err := parseNumeric(raw)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `UPDATE native_reserve SET reserve = 0 WHERE id = 1`)
	if err != nil {
		return nil, fmt.Errorf("reset native reserve: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return reserve, nil
}

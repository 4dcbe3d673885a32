package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mmeshcher/skillmarket-system/internal/model"
)

// CreateCourse сохраняет новый курс и возвращает присвоенный идентификатор.
// Идентификаторы выдаются последовательно, начиная с 1.
func (r *PostgresRepository) CreateCourse(ctx context.Context, c model.Course) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO courses (title, description, image_url, price, instructor)
		 VALUES ($1, $2, $3, $4::numeric, $5)
		 RETURNING id`,
		c.Title, c.Description, c.ImageURL, c.Price.String(), c.Instructor,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert course: %w", err)
	}

	err = addEvent(ctx, tx, model.EventCourseCreated, map[string]any{
		"course_id":  id,
		"title":      c.Title,
		"price":      c.Price.String(),
		"instructor": c.Instructor,
	})
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

func scanCourse(row pgx.Row) (*model.Course, error) {
	var (
		c        model.Course
		priceRaw string
	)

	err := row.Scan(&c.ID, &c.Title, &c.Description, &c.ImageURL, &priceRaw,
		&c.Instructor, &c.IsActive, &c.StudentsCount, &c.CreatedAt)
	if err != nil {
		return nil, err
	}

	c.Price, err = parseNumeric(priceRaw)
	if err != nil {
		return nil, err
	}

	return &c, nil
}

const courseColumns = `id, title, description, image_url, price::text, instructor, is_active, students_count, created_at`

// GetCourse возвращает курс по идентификатору.
func (r *PostgresRepository) GetCourse(ctx context.Context, id int64) (*model.Course, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE id = $1`, id,
	)

	c, err := scanCourse(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("get course: %w", err)
	}

	return c, nil
}

func (r *PostgresRepository) queryCourses(ctx context.Context, query string, args ...any) ([]model.Course, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select courses: %w", err)
	}
	defer rows.Close()

	var res []model.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, fmt.Errorf("scan course: %w", err)
		}
		res = append(res, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// GetActiveCourses возвращает все активные курсы в порядке возрастания идентификаторов.
func (r *PostgresRepository) GetActiveCourses(ctx context.Context) ([]model.Course, error) {
	return r.queryCourses(ctx,
		`SELECT `+courseColumns+` FROM courses WHERE is_active ORDER BY id`,
	)
}

// GetStudentCourses возвращает купленные студентом курсы в порядке возрастания идентификаторов.
func (r *PostgresRepository) GetStudentCourses(ctx context.Context, student string) ([]model.Course, error) {
	return r.queryCourses(ctx,
		`SELECT c.id, c.title, c.description, c.image_url, c.price::text, c.instructor,
		        c.is_active, c.students_count, c.created_at
		 FROM courses c
		 JOIN purchases p ON p.course_id = c.id
		 WHERE p.student = $1
		 ORDER BY c.id`,
		student,
	)
}

// HasPurchased сообщает, покупал ли пользователь указанный курс.
// Для несуществующего курса возвращает false без ошибки.
func (r *PostgresRepository) HasPurchased(ctx context.Context, user string, courseID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM purchases WHERE student = $1 AND course_id = $2)`,
		user, courseID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check purchase: %w", err)
	}

	return exists, nil
}

// PurchaseCourse выполняет покупку курса одной транзакцией: проверяет все
// предусловия, списывает цену со счёта студента в пределах разрешённого лимита,
// распределяет выплату преподавателю и комиссию в казну, фиксирует факт покупки.
// Любая неудача откатывает транзакцию целиком, частичных списаний не бывает.
func (r *PostgresRepository) PurchaseCourse(ctx context.Context, student string, courseID int64, treasury string) error {
	return r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		// Блокируем строку курса: счётчик студентов меняется только под блокировкой.
		row := tx.QueryRow(ctx,
			`SELECT `+courseColumns+` FROM courses WHERE id = $1 FOR UPDATE`, courseID,
		)
		course, err := scanCourse(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrCourseNotFound
			}
			return fmt.Errorf("lock course: %w", err)
		}

		if !course.IsActive {
			return ErrCourseInactive
		}
		if course.Instructor == student {
			return ErrSelfPurchase
		}

		var alreadyPurchased bool
		err = tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM purchases WHERE student = $1 AND course_id = $2)`,
			student, courseID,
		).Scan(&alreadyPurchased)
		if err != nil {
			return fmt.Errorf("check purchase: %w", err)
		}
		if alreadyPurchased {
			return ErrAlreadyPurchased
		}

		// Списание по модели pull: площадка забирает цену в пределах лимита,
		// который студент заранее выдал вызовом approve.
		if err := spendAllowance(ctx, tx, student, treasury, course.Price); err != nil {
			return err
		}

		balance, err := lockBalance(ctx, tx, student)
		if err != nil {
			return err
		}
		if balance.Cmp(course.Price) < 0 {
			return ErrInsufficientBalance
		}

		_, err = tx.Exec(ctx,
			`UPDATE balances SET balance = balance - $2::numeric WHERE account = $1`,
			student, course.Price.String(),
		)
		if err != nil {
			return fmt.Errorf("debit student: %w", err)
		}

		fee, instructorPayment := model.SplitPrice(course.Price)

		if err := creditBalance(ctx, tx, course.Instructor, instructorPayment); err != nil {
			return err
		}
		if err := creditBalance(ctx, tx, treasury, fee); err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO purchases (student, course_id) VALUES ($1, $2)`,
			student, courseID,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
				return ErrAlreadyPurchased
			}
			return fmt.Errorf("insert purchase: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE courses SET students_count = students_count + 1 WHERE id = $1`,
			courseID,
		)
		if err != nil {
			return fmt.Errorf("increment students count: %w", err)
		}

		err = addEvent(ctx, tx, model.EventCoursePurchased, map[string]any{
			"course_id":          courseID,
			"student":            student,
			"price":              course.Price.String(),
			"fee":                fee.String(),
			"instructor_payment": instructorPayment.String(),
		})
		if err != nil {
			return err
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		return nil
	})
}

// GetUndeliveredEvents возвращает события outbox-журнала, ещё не доставленные индексатору.
func (r *PostgresRepository) GetUndeliveredEvents(ctx context.Context, limit int) ([]model.Event, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, event_type, payload, created_at
		 FROM outbox_events
		 WHERE delivered_at IS NULL
		 ORDER BY id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer rows.Close()

	var res []model.Event
	for rows.Next() {
		var (
			ev        model.Event
			eventType string
		)
		if err := rows.Scan(&ev.ID, &eventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Type = model.EventType(eventType)
		res = append(res, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// MarkEventDelivered отмечает событие доставленным.
func (r *PostgresRepository) MarkEventDelivered(ctx context.Context, id int64) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE outbox_events SET delivered_at = $2 WHERE id = $1`,
		id, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark event delivered: %w", err)
	}

	return nil
}

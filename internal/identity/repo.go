package identity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"attendance/internal/model"
)

// Repository persists teacher and student records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateTeacher inserts a teacher and returns the stored profile.
func (r *Repository) CreateTeacher(ctx context.Context, name, email, passwordHash, subject string) (*model.Teacher, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO teachers (name, email, password, subject)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, email, subject, created_at
	`, name, email, passwordHash, subject)
	var t model.Teacher
	if err := row.Scan(&t.ID, &t.Name, &t.Email, &t.Subject, &t.CreatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// TeacherByEmail returns a teacher and their password hash, or nil when
// no such email exists.
func (r *Repository) TeacherByEmail(ctx context.Context, email string) (*model.Teacher, string, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, password, subject FROM teachers WHERE email = $1
	`, email)
	var t model.Teacher
	var hash string
	if err := row.Scan(&t.ID, &t.Name, &t.Email, &hash, &t.Subject); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", err
	}
	return &t, hash, nil
}

// TeacherByID resolves a teacher id, nil when the id no longer exists.
func (r *Repository) TeacherByID(ctx context.Context, id int) (*model.Teacher, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, subject FROM teachers WHERE id = $1
	`, id)
	var t model.Teacher
	if err := row.Scan(&t.ID, &t.Name, &t.Email, &t.Subject); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// TeacherEmailExists reports whether a teacher already uses the email.
func (r *Repository) TeacherEmailExists(ctx context.Context, email string) (bool, error) {
	var id int
	err := r.db.QueryRowContext(ctx, `SELECT id FROM teachers WHERE email = $1`, email).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// CreateStudent inserts a student and returns the stored profile.
func (r *Repository) CreateStudent(ctx context.Context, name, email, passwordHash, branch string, year int) (*model.Student, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO students (name, email, password, branch, year)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, email, branch, year, created_at
	`, name, email, passwordHash, branch, year)
	var s model.Student
	if err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Branch, &s.Year, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// StudentByEmail returns a student and their password hash, or nil when
// no such email exists.
func (r *Repository) StudentByEmail(ctx context.Context, email string) (*model.Student, string, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, password, branch, year FROM students WHERE email = $1
	`, email)
	var s model.Student
	var hash string
	if err := row.Scan(&s.ID, &s.Name, &s.Email, &hash, &s.Branch, &s.Year); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", err
	}
	return &s, hash, nil
}

// StudentByID resolves a student id, nil when the id no longer exists.
func (r *Repository) StudentByID(ctx context.Context, id int) (*model.Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, branch, year FROM students WHERE id = $1
	`, id)
	var s model.Student
	if err := row.Scan(&s.ID, &s.Name, &s.Email, &s.Branch, &s.Year); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// StudentEmailExists reports whether a student already uses the email.
func (r *Repository) StudentEmailExists(ctx context.Context, email string) (bool, error) {
	var id int
	err := r.db.QueryRowContext(ctx, `SELECT id FROM students WHERE email = $1`, email).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// ListStudents returns the full roster ordered by name.
func (r *Repository) ListStudents(ctx context.Context) ([]model.Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, branch, year FROM students ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	students := []model.Student{}
	for rows.Next() {
		var s model.Student
		if err := rows.Scan(&s.ID, &s.Name, &s.Email, &s.Branch, &s.Year); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// isUniqueViolation reports whether err is a Postgres unique constraint
// violation. Registration races on the same email land here instead of
// surfacing as a 500.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

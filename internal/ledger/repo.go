package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"attendance/internal/model"
)

// Repository persists attendance marks in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Upsert writes a mark keyed on (student_id, teacher_id, subject, date).
// A second mark for the same key overwrites the status. The returned bool
// is true when a new row was created, false when an existing one was
// updated; xmax = 0 distinguishes the two on the inserted row version.
func (r *Repository) Upsert(ctx context.Context, studentID, teacherID int, subject string, date time.Time, status string) (model.AttendanceRecord, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (student_id, teacher_id, subject, date, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (student_id, teacher_id, subject, date)
		DO UPDATE SET status = EXCLUDED.status
		RETURNING id, student_id, teacher_id, subject, date, status, created_at, (xmax = 0)
	`, studentID, teacherID, subject, date, status)
	var rec model.AttendanceRecord
	var created bool
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.TeacherID, &rec.Subject, &rec.Date, &rec.Status, &rec.CreatedAt, &created); err != nil {
		return model.AttendanceRecord{}, false, fmt.Errorf("upsert attendance: %w", err)
	}
	return rec, created, nil
}

// StudentSummary is one roster row of per-status counts.
type StudentSummary struct {
	StudentID int    `json:"student_id"`
	Name      string `json:"name"`
	Present   int    `json:"present"`
	Absent    int    `json:"absent"`
	Late      int    `json:"late"`
}

// Summary counts marks per student across all teachers and subjects.
// Students with no marks appear with zero counts. Ordered by name.
func (r *Repository) Summary(ctx context.Context) ([]StudentSummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT
			s.id,
			s.name,
			COUNT(*) FILTER (WHERE a.status = 'present') AS present,
			COUNT(*) FILTER (WHERE a.status = 'absent') AS absent,
			COUNT(*) FILTER (WHERE a.status = 'late') AS late
		FROM students s
		LEFT JOIN attendance a ON a.student_id = s.id
		GROUP BY s.id, s.name
		ORDER BY s.name
	`)
	if err != nil {
		return nil, fmt.Errorf("attendance summary: %w", err)
	}
	defer rows.Close()
	summary := []StudentSummary{}
	for rows.Next() {
		var row StudentSummary
		if err := rows.Scan(&row.StudentID, &row.Name, &row.Present, &row.Absent, &row.Late); err != nil {
			return nil, err
		}
		summary = append(summary, row)
	}
	return summary, rows.Err()
}

// TeacherRecord is a mark as listed for the teacher who owns it.
type TeacherRecord struct {
	ID          int       `json:"id"`
	StudentID   int       `json:"student_id"`
	StudentName string    `json:"student_name"`
	Subject     string    `json:"subject"`
	Date        time.Time `json:"date"`
	Status      string    `json:"status"`
}

// RecordFilter narrows a teacher's record listing. All set filters apply
// conjunctively; the date range is inclusive on both ends.
type RecordFilter struct {
	DateFrom  *time.Time
	DateTo    *time.Time
	StudentID *int
}

// RecordsForTeacher lists marks scoped to one (teacher, subject) pair,
// newest date first, then student name.
func (r *Repository) RecordsForTeacher(ctx context.Context, teacherID int, subject string, f RecordFilter) ([]TeacherRecord, error) {
	query := `
		SELECT a.id, a.student_id, s.name, a.subject, a.date, a.status
		FROM attendance a
		JOIN students s ON s.id = a.student_id
		WHERE a.teacher_id = $1 AND a.subject = $2`
	args := []any{teacherID, subject}
	if f.DateFrom != nil {
		args = append(args, *f.DateFrom)
		query += fmt.Sprintf(" AND a.date >= $%d", len(args))
	}
	if f.DateTo != nil {
		args = append(args, *f.DateTo)
		query += fmt.Sprintf(" AND a.date <= $%d", len(args))
	}
	if f.StudentID != nil {
		args = append(args, *f.StudentID)
		query += fmt.Sprintf(" AND a.student_id = $%d", len(args))
	}
	query += " ORDER BY a.date DESC, s.name"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list teacher records: %w", err)
	}
	defer rows.Close()
	records := []TeacherRecord{}
	for rows.Next() {
		var rec TeacherRecord
		if err := rows.Scan(&rec.ID, &rec.StudentID, &rec.StudentName, &rec.Subject, &rec.Date, &rec.Status); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// StudentRecord is a mark as seen in a student's own history.
type StudentRecord struct {
	ID          int       `json:"id"`
	Date        time.Time `json:"date"`
	Status      string    `json:"status"`
	Subject     string    `json:"subject"`
	TeacherName string    `json:"teacher_name,omitempty"`
}

// HistoryFilter narrows a student's history. Subject matches as a
// case-insensitive substring; the date range is inclusive.
type HistoryFilter struct {
	Subject  string
	DateFrom *time.Time
	DateTo   *time.Time
}

// HistoryForStudent lists one student's marks, newest date first, then
// subject. The teacher name rides along for display.
func (r *Repository) HistoryForStudent(ctx context.Context, studentID int, f HistoryFilter) ([]StudentRecord, error) {
	query := `
		SELECT a.id, a.date, a.status, a.subject, t.name
		FROM attendance a
		LEFT JOIN teachers t ON a.teacher_id = t.id
		WHERE a.student_id = $1`
	args := []any{studentID}
	if f.Subject != "" {
		args = append(args, "%"+f.Subject+"%")
		query += fmt.Sprintf(" AND a.subject ILIKE $%d", len(args))
	}
	if f.DateFrom != nil {
		args = append(args, *f.DateFrom)
		query += fmt.Sprintf(" AND a.date >= $%d", len(args))
	}
	if f.DateTo != nil {
		args = append(args, *f.DateTo)
		query += fmt.Sprintf(" AND a.date <= $%d", len(args))
	}
	query += " ORDER BY a.date DESC, a.subject"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list student history: %w", err)
	}
	defer rows.Close()
	records := []StudentRecord{}
	for rows.Next() {
		var rec StudentRecord
		var teacherName sql.NullString
		if err := rows.Scan(&rec.ID, &rec.Date, &rec.Status, &rec.Subject, &teacherName); err != nil {
			return nil, err
		}
		rec.TeacherName = teacherName.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SubjectsForStudent returns the distinct subjects ever recorded for a
// student, unfiltered, in subject order.
func (r *Repository) SubjectsForStudent(ctx context.Context, studentID int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT subject FROM attendance WHERE student_id = $1 ORDER BY subject
	`, studentID)
	if err != nil {
		return nil, fmt.Errorf("list student subjects: %w", err)
	}
	defer rows.Close()
	subjects := []string{}
	for rows.Next() {
		var subject string
		if err := rows.Scan(&subject); err != nil {
			return nil, err
		}
		subjects = append(subjects, subject)
	}
	return subjects, rows.Err()
}

package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"attendance/internal/model"
)

const dateLayout = "2006-01-02"

// summaryCacheKey holds the roster-wide summary between marks.
const summaryCacheKey = "attendance:summary"

var (
	// ErrInvalidStatus means the status is not present, absent or late.
	ErrInvalidStatus = errors.New("status must be one of: present, absent, late")
	// ErrInvalidDate means a date was not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("date must be in YYYY-MM-DD format")
	// ErrStudentNotFound means the target student id does not resolve.
	ErrStudentNotFound = errors.New("student not found")
)

var validStatuses = map[string]bool{
	"present": true,
	"absent":  true,
	"late":    true,
}

// StudentDirectory resolves student ids for mark validation.
type StudentDirectory interface {
	StudentByID(ctx context.Context, id int) (*model.Student, error)
}

// Store is the persistence contract the ledger runs on. *Repository is
// the Postgres implementation.
type Store interface {
	Upsert(ctx context.Context, studentID, teacherID int, subject string, date time.Time, status string) (model.AttendanceRecord, bool, error)
	Summary(ctx context.Context) ([]StudentSummary, error)
	RecordsForTeacher(ctx context.Context, teacherID int, subject string, f RecordFilter) ([]TeacherRecord, error)
	HistoryForStudent(ctx context.Context, studentID int, f HistoryFilter) ([]StudentRecord, error)
	SubjectsForStudent(ctx context.Context, studentID int) ([]string, error)
}

// Cache holds the roster summary between writes. Implementations must
// tolerate being unavailable; the ledger treats cache errors as misses.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Statistics aggregates a filtered record set. Percentage is
// present/total*100 rounded to one decimal, 0.0 on an empty set.
type Statistics struct {
	Total      int     `json:"total"`
	Present    int     `json:"present"`
	Absent     int     `json:"absent"`
	Late       int     `json:"late"`
	Percentage float64 `json:"percentage"`
}

// MarkResult is the outcome of recording a mark.
type MarkResult struct {
	Record      model.AttendanceRecord
	StudentName string
	Created     bool
}

// Service is the attendance ledger: upsert marking plus the role-scoped
// query surface.
type Service struct {
	repo     Store
	students StudentDirectory
	cache    Cache
	cacheTTL time.Duration
	log      *zap.Logger
}

// NewService creates a ledger service. cache may be nil to disable the
// summary cache.
func NewService(repo Store, students StudentDirectory, cache Cache, cacheTTL time.Duration, log *zap.Logger) *Service {
	return &Service{repo: repo, students: students, cache: cache, cacheTTL: cacheTTL, log: log}
}

// Mark records attendance for one student on one day. Marking is
// idempotent per (student, teacher, subject, date): a repeat mark
// overwrites the status instead of adding a row. The subject always
// comes from the marking teacher, never from the caller.
func (s *Service) Mark(ctx context.Context, teacher *model.Teacher, studentID int, date, status string) (MarkResult, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !validStatuses[status] {
		return MarkResult{}, ErrInvalidStatus
	}
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return MarkResult{}, ErrInvalidDate
	}

	student, err := s.students.StudentByID(ctx, studentID)
	if err != nil {
		return MarkResult{}, fmt.Errorf("resolve student: %w", err)
	}
	if student == nil {
		return MarkResult{}, ErrStudentNotFound
	}

	rec, created, err := s.repo.Upsert(ctx, studentID, teacher.ID, teacher.Subject, day, status)
	if err != nil {
		return MarkResult{}, err
	}

	marksTotal.WithLabelValues(status).Inc()
	outcome := "updated"
	if created {
		outcome = "created"
	}
	markUpsertsTotal.WithLabelValues(outcome).Inc()

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, summaryCacheKey); err != nil {
			s.log.Warn("summary cache invalidation failed", zap.Error(err))
		}
	}

	s.log.Info("attendance marked",
		zap.Int("student_id", studentID),
		zap.Int("teacher_id", teacher.ID),
		zap.String("subject", teacher.Subject),
		zap.String("date", date),
		zap.String("status", status),
		zap.Bool("created", created),
	)
	return MarkResult{Record: rec, StudentName: student.Name, Created: created}, nil
}

// Summary returns per-student counts across all teachers and subjects,
// including students with no marks. Served from cache when fresh.
func (s *Service) Summary(ctx context.Context) ([]StudentSummary, error) {
	if s.cache != nil {
		var cached []StudentSummary
		hit, err := s.cache.GetJSON(ctx, summaryCacheKey, &cached)
		if err != nil {
			s.log.Warn("summary cache read failed", zap.Error(err))
		} else if hit {
			return cached, nil
		}
	}

	summary, err := s.repo.Summary(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, summaryCacheKey, summary, s.cacheTTL); err != nil {
			s.log.Warn("summary cache write failed", zap.Error(err))
		}
	}
	return summary, nil
}

// RecordQuery carries the optional filters of a teacher record listing,
// dates in YYYY-MM-DD form.
type RecordQuery struct {
	DateFrom  string
	DateTo    string
	StudentID *int
}

// RecordsForTeacher lists the requesting teacher's own marks with
// statistics computed from the same rows.
func (s *Service) RecordsForTeacher(ctx context.Context, teacher *model.Teacher, q RecordQuery) ([]TeacherRecord, Statistics, error) {
	var filter RecordFilter
	var err error
	if filter.DateFrom, err = parseDate(q.DateFrom); err != nil {
		return nil, Statistics{}, err
	}
	if filter.DateTo, err = parseDate(q.DateTo); err != nil {
		return nil, Statistics{}, err
	}
	filter.StudentID = q.StudentID

	records, err := s.repo.RecordsForTeacher(ctx, teacher.ID, teacher.Subject, filter)
	if err != nil {
		return nil, Statistics{}, err
	}
	stats := Statistics{Total: len(records)}
	for _, rec := range records {
		stats.count(rec.Status)
	}
	stats.finish()
	return records, stats, nil
}

// HistoryQuery carries the optional filters of a student history
// request, dates in YYYY-MM-DD form.
type HistoryQuery struct {
	Subject  string
	DateFrom string
	DateTo   string
}

// HistoryForStudent lists the student's own marks plus the full distinct
// subject list (independent of filters) and statistics over the
// filtered rows.
func (s *Service) HistoryForStudent(ctx context.Context, studentID int, q HistoryQuery) ([]StudentRecord, []string, Statistics, error) {
	filter := HistoryFilter{Subject: strings.TrimSpace(q.Subject)}
	var err error
	if filter.DateFrom, err = parseDate(q.DateFrom); err != nil {
		return nil, nil, Statistics{}, err
	}
	if filter.DateTo, err = parseDate(q.DateTo); err != nil {
		return nil, nil, Statistics{}, err
	}

	records, err := s.repo.HistoryForStudent(ctx, studentID, filter)
	if err != nil {
		return nil, nil, Statistics{}, err
	}
	subjects, err := s.repo.SubjectsForStudent(ctx, studentID)
	if err != nil {
		return nil, nil, Statistics{}, err
	}

	stats := Statistics{Total: len(records)}
	for _, rec := range records {
		stats.count(rec.Status)
	}
	stats.finish()
	return records, subjects, stats, nil
}

func (st *Statistics) count(status string) {
	switch status {
	case "present":
		st.Present++
	case "absent":
		st.Absent++
	case "late":
		st.Late++
	}
}

func (st *Statistics) finish() {
	if st.Total == 0 {
		st.Percentage = 0.0
		return
	}
	st.Percentage = math.Round(float64(st.Present)/float64(st.Total)*1000) / 10
}

func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	day, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil, ErrInvalidDate
	}
	return &day, nil
}

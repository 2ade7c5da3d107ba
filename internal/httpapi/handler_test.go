package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"attendance/internal/auth"
	"attendance/internal/identity"
	"attendance/internal/ledger"
	"attendance/internal/model"
)

// memIdentity implements identity.Store plus the guard's resolvers and
// the ledger's student directory.
type memIdentity struct {
	teacherSeq, studentSeq int
	teachers               map[int]*model.Teacher
	students               map[int]*model.Student
	teacherHashes          map[string]string
	studentHashes          map[string]string
}

func newMemIdentity() *memIdentity {
	return &memIdentity{
		teachers:      map[int]*model.Teacher{},
		students:      map[int]*model.Student{},
		teacherHashes: map[string]string{},
		studentHashes: map[string]string{},
	}
}

func (m *memIdentity) CreateTeacher(_ context.Context, name, email, hash, subject string) (*model.Teacher, error) {
	m.teacherSeq++
	t := &model.Teacher{ID: m.teacherSeq, Name: name, Email: email, Subject: subject, CreatedAt: time.Now()}
	m.teachers[t.ID] = t
	m.teacherHashes[email] = hash
	return t, nil
}

func (m *memIdentity) TeacherByEmail(_ context.Context, email string) (*model.Teacher, string, error) {
	for _, t := range m.teachers {
		if t.Email == email {
			return t, m.teacherHashes[email], nil
		}
	}
	return nil, "", nil
}

func (m *memIdentity) TeacherEmailExists(ctx context.Context, email string) (bool, error) {
	t, _, err := m.TeacherByEmail(ctx, email)
	return t != nil, err
}

func (m *memIdentity) TeacherByID(_ context.Context, id int) (*model.Teacher, error) {
	return m.teachers[id], nil
}

func (m *memIdentity) CreateStudent(_ context.Context, name, email, hash, branch string, year int) (*model.Student, error) {
	m.studentSeq++
	s := &model.Student{ID: m.studentSeq, Name: name, Email: email, Branch: branch, Year: year, CreatedAt: time.Now()}
	m.students[s.ID] = s
	m.studentHashes[email] = hash
	return s, nil
}

func (m *memIdentity) StudentByEmail(_ context.Context, email string) (*model.Student, string, error) {
	for _, s := range m.students {
		if s.Email == email {
			return s, m.studentHashes[email], nil
		}
	}
	return nil, "", nil
}

func (m *memIdentity) StudentEmailExists(ctx context.Context, email string) (bool, error) {
	s, _, err := m.StudentByEmail(ctx, email)
	return s != nil, err
}

func (m *memIdentity) StudentByID(_ context.Context, id int) (*model.Student, error) {
	return m.students[id], nil
}

func (m *memIdentity) ListStudents(context.Context) ([]model.Student, error) {
	out := []model.Student{}
	for _, s := range m.students {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// memLedger implements ledger.Store over a natural-key map, applying
// the same filter semantics as the SQL repository.
type memLedger struct {
	seq      int
	actors   *memIdentity
	rows     map[string]model.AttendanceRecord
}

func newMemLedger(actors *memIdentity) *memLedger {
	return &memLedger{actors: actors, rows: map[string]model.AttendanceRecord{}}
}

func (m *memLedger) key(studentID, teacherID int, subject string, date time.Time) string {
	return fmt.Sprintf("%d|%d|%s|%s", studentID, teacherID, subject, date.Format("2006-01-02"))
}

func (m *memLedger) Upsert(_ context.Context, studentID, teacherID int, subject string, date time.Time, status string) (model.AttendanceRecord, bool, error) {
	key := m.key(studentID, teacherID, subject, date)
	if rec, ok := m.rows[key]; ok {
		rec.Status = status
		m.rows[key] = rec
		return rec, false, nil
	}
	m.seq++
	rec := model.AttendanceRecord{
		ID: m.seq, StudentID: studentID, TeacherID: teacherID,
		Subject: subject, Date: date, Status: status, CreatedAt: time.Now(),
	}
	m.rows[key] = rec
	return rec, true, nil
}

func (m *memLedger) Summary(context.Context) ([]ledger.StudentSummary, error) {
	counts := map[int]*ledger.StudentSummary{}
	for _, s := range m.actors.students {
		counts[s.ID] = &ledger.StudentSummary{StudentID: s.ID, Name: s.Name}
	}
	for _, rec := range m.rows {
		row, ok := counts[rec.StudentID]
		if !ok {
			continue
		}
		switch rec.Status {
		case "present":
			row.Present++
		case "absent":
			row.Absent++
		case "late":
			row.Late++
		}
	}
	out := []ledger.StudentSummary{}
	for _, row := range counts {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func inRange(date time.Time, from, to *time.Time) bool {
	if from != nil && date.Before(*from) {
		return false
	}
	if to != nil && date.After(*to) {
		return false
	}
	return true
}

func (m *memLedger) RecordsForTeacher(_ context.Context, teacherID int, subject string, f ledger.RecordFilter) ([]ledger.TeacherRecord, error) {
	out := []ledger.TeacherRecord{}
	for _, rec := range m.rows {
		if rec.TeacherID != teacherID || rec.Subject != subject {
			continue
		}
		if !inRange(rec.Date, f.DateFrom, f.DateTo) {
			continue
		}
		if f.StudentID != nil && rec.StudentID != *f.StudentID {
			continue
		}
		name := ""
		if s := m.actors.students[rec.StudentID]; s != nil {
			name = s.Name
		}
		out = append(out, ledger.TeacherRecord{
			ID: rec.ID, StudentID: rec.StudentID, StudentName: name,
			Subject: rec.Subject, Date: rec.Date, Status: rec.Status,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].StudentName < out[j].StudentName
	})
	return out, nil
}

func (m *memLedger) HistoryForStudent(_ context.Context, studentID int, f ledger.HistoryFilter) ([]ledger.StudentRecord, error) {
	out := []ledger.StudentRecord{}
	for _, rec := range m.rows {
		if rec.StudentID != studentID {
			continue
		}
		if f.Subject != "" && !strings.Contains(strings.ToLower(rec.Subject), strings.ToLower(f.Subject)) {
			continue
		}
		if !inRange(rec.Date, f.DateFrom, f.DateTo) {
			continue
		}
		teacherName := ""
		if t := m.actors.teachers[rec.TeacherID]; t != nil {
			teacherName = t.Name
		}
		out = append(out, ledger.StudentRecord{
			ID: rec.ID, Date: rec.Date, Status: rec.Status,
			Subject: rec.Subject, TeacherName: teacherName,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Subject < out[j].Subject
	})
	return out, nil
}

func (m *memLedger) SubjectsForStudent(_ context.Context, studentID int) ([]string, error) {
	seen := map[string]bool{}
	for _, rec := range m.rows {
		if rec.StudentID == studentID {
			seen[rec.Subject] = true
		}
	}
	out := []string{}
	for subject := range seen {
		out = append(out, subject)
	}
	sort.Strings(out)
	return out, nil
}

func newTestRouter(t *testing.T) (*gin.Engine, *memLedger) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()

	actors := newMemIdentity()
	marks := newMemLedger(actors)

	tokens := auth.NewTokens("attendance-api", "test-secret", time.Hour)
	hasher := auth.NewBcryptHasher(bcrypt.MinCost)

	identitySvc := identity.NewService(actors, hasher, tokens, log)
	ledgerSvc := ledger.NewService(marks, actors, nil, 0, log)

	guard := auth.NewGuard(tokens, actors, actors, log)
	handler := New(identitySvc, ledgerSvc, log)

	r := gin.New()
	Register(r, handler, guard)
	return r, marks
}

func do(r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = strings.NewReader(string(raw))
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func registerTeacher(t *testing.T, r *gin.Engine, subject string) string {
	t.Helper()
	w := do(r, http.MethodPost, "/api/teachers/register", "", gin.H{
		"name": "Ms. Rao", "email": subject + "-teacher@example.com", "password": "s3cret", "subject": subject,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["token"].(string)
}

func registerStudent(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := do(r, http.MethodPost, "/api/students/register", "", gin.H{
		"name": "Asha Verma", "email": "asha@example.com", "password": "s3cret", "branch": "CSE", "year": 2,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode(t, w)["token"].(string)
}

func TestMarkTwiceLeavesOneRecordWithLatestStatus(t *testing.T) {
	r, marks := newTestRouter(t)
	teacherToken := registerTeacher(t, r, "Math")
	studentToken := registerStudent(t, r)

	w := do(r, http.MethodPost, "/api/teachers/attendance", teacherToken, gin.H{
		"student_id": 1, "date": "2024-01-10", "status": "present",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Attendance marked successfully", decode(t, w)["message"])

	w = do(r, http.MethodPost, "/api/teachers/attendance", teacherToken, gin.H{
		"student_id": 1, "date": "2024-01-10", "status": "late",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Attendance updated successfully", decode(t, w)["message"])

	require.Len(t, marks.rows, 1)
	for _, rec := range marks.rows {
		assert.Equal(t, "late", rec.Status)
	}

	// The student sees exactly that one record through a day-bounded filter.
	w = do(r, http.MethodGet, "/api/students/attendance?date_from=2024-01-10&date_to=2024-01-10", studentToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	records := body["attendance"].([]any)
	require.Len(t, records, 1)
	rec := records[0].(map[string]any)
	assert.Equal(t, "Math", rec["subject"])
	assert.Equal(t, "late", rec["status"])
	assert.Equal(t, "Ms. Rao", rec["teacher_name"])

	stats := body["statistics"].(map[string]any)
	assert.Equal(t, float64(1), stats["total"])
	assert.Equal(t, float64(1), stats["late"])
	assert.Equal(t, float64(0), stats["percentage"])
}

func TestMarkValidation(t *testing.T) {
	r, _ := newTestRouter(t)
	teacherToken := registerTeacher(t, r, "Math")
	registerStudent(t, r)

	w := do(r, http.MethodPost, "/api/teachers/attendance", teacherToken, gin.H{
		"student_id": 1, "date": "2024-01-10", "status": "sick",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Status must be one of: present, absent, late"}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/teachers/attendance", teacherToken, gin.H{
		"student_id": 999, "date": "2024-01-10", "status": "present",
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Student not found"}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/teachers/attendance", teacherToken, gin.H{
		"student_id": 1, "status": "present",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"All fields are required: student_id, date, status"}`, w.Body.String())
}

func TestUnauthenticatedAttendance(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodGet, "/api/students/attendance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Access denied. No token provided."}`, w.Body.String())
}

func TestTeacherTokenOnStudentRoute(t *testing.T) {
	r, _ := newTestRouter(t)
	teacherToken := registerTeacher(t, r, "Math")

	w := do(r, http.MethodGet, "/api/students/attendance", teacherToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.JSONEq(t, `{"error":"Access denied. Student token required."}`, w.Body.String())
}

func TestLoginErrorsAreByteIdentical(t *testing.T) {
	r, _ := newTestRouter(t)
	registerStudent(t, r)

	wrongPassword := do(r, http.MethodPost, "/api/students/login", "", gin.H{
		"email": "asha@example.com", "password": "nope",
	})
	unknownEmail := do(r, http.MethodPost, "/api/students/login", "", gin.H{
		"email": "ghost@example.com", "password": "nope",
	})

	assert.Equal(t, http.StatusUnauthorized, wrongPassword.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownEmail.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownEmail.Body.String())
}

func TestDuplicateRegistration(t *testing.T) {
	r, _ := newTestRouter(t)
	registerStudent(t, r)

	w := do(r, http.MethodPost, "/api/students/register", "", gin.H{
		"name": "Imposter", "email": "asha@example.com", "password": "x", "branch": "ECE", "year": 1,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"Student with this email already exists"}`, w.Body.String())
}

func TestSummaryCountsAllSubjects(t *testing.T) {
	r, _ := newTestRouter(t)
	mathToken := registerTeacher(t, r, "Math")
	physicsToken := registerTeacher(t, r, "Physics")
	registerStudent(t, r)

	for _, mark := range []struct {
		token, date, status string
	}{
		{mathToken, "2024-01-10", "present"},
		{mathToken, "2024-01-11", "absent"},
		{physicsToken, "2024-01-10", "late"},
	} {
		w := do(r, http.MethodPost, "/api/teachers/attendance", mark.token, gin.H{
			"student_id": 1, "date": mark.date, "status": mark.status,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	// Any teacher's summary spans every subject, not just their own.
	w := do(r, http.MethodGet, "/api/teachers/attendance-summary", mathToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	summary := decode(t, w)["summary"].([]any)
	require.Len(t, summary, 1)
	row := summary[0].(map[string]any)
	assert.Equal(t, float64(1), row["present"])
	assert.Equal(t, float64(1), row["absent"])
	assert.Equal(t, float64(1), row["late"])

	// Records stay scoped to the requesting teacher's subject.
	w = do(r, http.MethodGet, "/api/teachers/attendance-records", mathToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Len(t, body["records"].([]any), 2)
	stats := body["statistics"].(map[string]any)
	assert.Equal(t, float64(2), stats["total"])
	assert.Equal(t, float64(50), stats["percentage"])
}

func TestStudentHistorySubjectFilterIsSubstring(t *testing.T) {
	r, _ := newTestRouter(t)
	mathToken := registerTeacher(t, r, "Mathematics")
	physicsToken := registerTeacher(t, r, "Physics")
	studentToken := registerStudent(t, r)

	for _, tok := range []string{mathToken, physicsToken} {
		w := do(r, http.MethodPost, "/api/teachers/attendance", tok, gin.H{
			"student_id": 1, "date": "2024-01-10", "status": "present",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w := do(r, http.MethodGet, "/api/students/attendance?subject=math", studentToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	records := body["attendance"].([]any)
	require.Len(t, records, 1)
	assert.Equal(t, "Mathematics", records[0].(map[string]any)["subject"])

	// The subject list ignores the filter.
	subjects := body["subjects"].([]any)
	assert.ElementsMatch(t, []any{"Mathematics", "Physics"}, subjects)
}

func TestRouteNotFound(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Route not found"}`, w.Body.String())
}

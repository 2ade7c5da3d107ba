// Package httpapi maps HTTP routes onto the identity and ledger
// services. Handlers own request binding and the error-to-status
// mapping; all domain decisions live in the services.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"attendance/internal/auth"
	"attendance/internal/identity"
	"attendance/internal/ledger"
)

// Handler serves the attendance API.
type Handler struct {
	identity *identity.Service
	ledger   *ledger.Service
	log      *zap.Logger
}

// New creates a handler.
func New(identitySvc *identity.Service, ledgerSvc *ledger.Service, log *zap.Logger) *Handler {
	return &Handler{identity: identitySvc, ledger: ledgerSvc, log: log}
}

// Register mounts all routes on the engine.
func Register(r *gin.Engine, h *Handler, guard *auth.Guard) {
	r.GET("/", h.Index)

	teachers := r.Group("/api/teachers")
	teachers.POST("/register", h.RegisterTeacher)
	teachers.POST("/login", h.LoginTeacher)
	teachers.GET("/profile", guard.RequireTeacher(), h.TeacherProfile)
	teachers.GET("/students", guard.RequireTeacher(), h.Students)
	teachers.GET("/attendance-summary", guard.RequireTeacher(), h.AttendanceSummary)
	teachers.GET("/attendance-records", guard.RequireTeacher(), h.AttendanceRecords)
	teachers.POST("/attendance", guard.RequireTeacher(), h.MarkAttendance)

	students := r.Group("/api/students")
	students.POST("/register", h.RegisterStudent)
	students.POST("/login", h.LoginStudent)
	students.GET("/profile", guard.RequireStudent(), h.StudentProfile)
	students.GET("/attendance", guard.RequireStudent(), h.StudentAttendance)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Route not found"})
	})
}

// Index describes the API.
func (h *Handler) Index(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Smart Attendance Management System API is running!",
		"version": "1.0.0",
		"endpoints": gin.H{
			"students": gin.H{
				"register":   "POST /api/students/register",
				"login":      "POST /api/students/login",
				"profile":    "GET /api/students/profile",
				"attendance": "GET /api/students/attendance",
			},
			"teachers": gin.H{
				"register":          "POST /api/teachers/register",
				"login":             "POST /api/teachers/login",
				"profile":           "GET /api/teachers/profile",
				"students":          "GET /api/teachers/students",
				"attendanceSummary": "GET /api/teachers/attendance-summary",
				"attendanceRecords": "GET /api/teachers/attendance-records",
				"markAttendance":    "POST /api/teachers/attendance",
			},
		},
	})
}

// ---------- Teacher identity ----------

type registerTeacherRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Subject  string `json:"subject" binding:"required"`
}

func (h *Handler) RegisterTeacher(c *gin.Context) {
	var req registerTeacherRequest
	if !h.bind(c, &req, "All fields are required: name, email, password, subject") {
		return
	}
	teacher, token, err := h.identity.RegisterTeacher(c.Request.Context(), req.Name, req.Email, req.Password, req.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrDuplicateEmail) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Teacher with this email already exists"})
			return
		}
		h.fail(c, "teacher registration failed", err, "Internal server error during registration")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Teacher registered successfully",
		"teacher": teacher,
		"token":   token,
	})
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) LoginTeacher(c *gin.Context) {
	var req loginRequest
	if !h.bind(c, &req, "Email and password are required") {
		return
	}
	teacher, token, err := h.identity.LoginTeacher(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		h.fail(c, "teacher login failed", err, "Internal server error during login")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"teacher": teacher,
		"token":   token,
	})
}

func (h *Handler) TeacherProfile(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Teacher profile retrieved successfully",
		"teacher": auth.TeacherFrom(c),
	})
}

// ---------- Teacher ledger views ----------

func (h *Handler) Students(c *gin.Context) {
	students, err := h.identity.Students(c.Request.Context())
	if err != nil {
		h.fail(c, "list students failed", err, "Failed to fetch students")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Students retrieved successfully",
		"students": students,
	})
}

func (h *Handler) AttendanceSummary(c *gin.Context) {
	summary, err := h.ledger.Summary(c.Request.Context())
	if err != nil {
		h.fail(c, "attendance summary failed", err, "Failed to fetch attendance summary")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Attendance summary retrieved successfully",
		"summary": summary,
	})
}

func (h *Handler) AttendanceRecords(c *gin.Context) {
	q := ledger.RecordQuery{
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
	}
	if raw := c.Query("student_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "student_id must be a number"})
			return
		}
		q.StudentID = &id
	}

	teacher := auth.TeacherFrom(c)
	records, stats, err := h.ledger.RecordsForTeacher(c.Request.Context(), teacher, q)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidDate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Date must be in YYYY-MM-DD format"})
			return
		}
		h.fail(c, "attendance records failed", err, "Failed to fetch attendance records")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":    "Attendance records retrieved successfully",
		"records":    records,
		"statistics": stats,
	})
}

type markAttendanceRequest struct {
	StudentID int    `json:"student_id" binding:"required"`
	Date      string `json:"date" binding:"required"`
	Status    string `json:"status" binding:"required"`
}

func (h *Handler) MarkAttendance(c *gin.Context) {
	var req markAttendanceRequest
	if !h.bind(c, &req, "All fields are required: student_id, date, status") {
		return
	}

	teacher := auth.TeacherFrom(c)
	result, err := h.ledger.Mark(c.Request.Context(), teacher, req.StudentID, req.Date, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrInvalidStatus):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Status must be one of: present, absent, late"})
		case errors.Is(err, ledger.ErrInvalidDate):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Date must be in YYYY-MM-DD format"})
		case errors.Is(err, ledger.ErrStudentNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Student not found"})
		default:
			h.fail(c, "mark attendance failed", err, "Internal server error")
		}
		return
	}

	message := "Attendance marked successfully"
	if !result.Created {
		message = "Attendance updated successfully"
	}
	c.JSON(http.StatusOK, gin.H{
		"message": message,
		"attendance": gin.H{
			"id":           result.Record.ID,
			"student_id":   result.Record.StudentID,
			"teacher_id":   result.Record.TeacherID,
			"subject":      result.Record.Subject,
			"date":         result.Record.Date,
			"status":       result.Record.Status,
			"student_name": result.StudentName,
		},
		"marked_by": gin.H{
			"teacher_id":   teacher.ID,
			"teacher_name": teacher.Name,
		},
	})
}

// ---------- Student identity ----------

type registerStudentRequest struct {
	Name     string      `json:"name" binding:"required"`
	Email    string      `json:"email" binding:"required"`
	Password string      `json:"password" binding:"required"`
	Branch   string      `json:"branch" binding:"required"`
	Year     json.Number `json:"year" binding:"required"`
}

func (h *Handler) RegisterStudent(c *gin.Context) {
	var req registerStudentRequest
	if !h.bind(c, &req, "All fields are required: name, email, password, branch, year") {
		return
	}
	year, err := strconv.Atoi(req.Year.String())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Year must be a number"})
		return
	}

	student, token, err := h.identity.RegisterStudent(c.Request.Context(), req.Name, req.Email, req.Password, req.Branch, year)
	if err != nil {
		if errors.Is(err, identity.ErrDuplicateEmail) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Student with this email already exists"})
			return
		}
		h.fail(c, "student registration failed", err, "Internal server error during registration")
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Student registered successfully",
		"student": student,
		"token":   token,
	})
}

func (h *Handler) LoginStudent(c *gin.Context) {
	var req loginRequest
	if !h.bind(c, &req, "Email and password are required") {
		return
	}
	student, token, err := h.identity.LoginStudent(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
			return
		}
		h.fail(c, "student login failed", err, "Internal server error during login")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"student": student,
		"token":   token,
	})
}

func (h *Handler) StudentProfile(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Student profile retrieved successfully",
		"student": auth.StudentFrom(c),
	})
}

// ---------- Student ledger view ----------

func (h *Handler) StudentAttendance(c *gin.Context) {
	student := auth.StudentFrom(c)
	q := ledger.HistoryQuery{
		Subject:  c.Query("subject"),
		DateFrom: c.Query("date_from"),
		DateTo:   c.Query("date_to"),
	}

	records, subjects, stats, err := h.ledger.HistoryForStudent(c.Request.Context(), student.ID, q)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidDate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Date must be in YYYY-MM-DD format"})
			return
		}
		h.fail(c, "student attendance failed", err, "Internal server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Attendance records retrieved successfully",
		"student": gin.H{
			"id":   student.ID,
			"name": student.Name,
		},
		"filters": gin.H{
			"subject":   orNil(q.Subject),
			"date_from": orNil(q.DateFrom),
			"date_to":   orNil(q.DateTo),
		},
		"subjects":   subjects,
		"attendance": records,
		"statistics": stats,
	})
}

// ---------- Helpers ----------

// bind decodes the JSON body. Missing required fields get the
// route-specific message; a malformed body gets a generic one.
func (h *Handler) bind(c *gin.Context, req any, requiredMsg string) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": requiredMsg})
		} else {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		}
		return false
	}
	return true
}

// fail logs the real error and sends a genericized message so store
// internals never leak to clients.
func (h *Handler) fail(c *gin.Context, logMsg string, err error, clientMsg string) {
	h.log.Error(logMsg, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": clientMsg})
}

func orNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

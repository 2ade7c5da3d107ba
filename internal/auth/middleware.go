package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"attendance/internal/model"
)

// Context keys under which the resolved actor is stored for handlers.
const (
	ctxTeacher = "auth.teacher"
	ctxStudent = "auth.student"
)

// TeacherResolver re-resolves a teacher id against the store.
type TeacherResolver interface {
	TeacherByID(ctx context.Context, id int) (*model.Teacher, error)
}

// StudentResolver re-resolves a student id against the store.
type StudentResolver interface {
	StudentByID(ctx context.Context, id int) (*model.Student, error)
}

// Guard enforces bearer session credentials on protected routes. A valid
// token is not enough: the embedded id is looked up again so deleted
// actors and stale claims cannot pass.
type Guard struct {
	verifier TokenVerifier
	teachers TeacherResolver
	students StudentResolver
	log      *zap.Logger
}

// NewGuard builds a Guard over the given verifier and resolvers.
func NewGuard(verifier TokenVerifier, teachers TeacherResolver, students StudentResolver, log *zap.Logger) *Guard {
	return &Guard{verifier: verifier, teachers: teachers, students: students, log: log}
}

// RequireTeacher admits only requests carrying a live teacher credential.
func (g *Guard) RequireTeacher() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := g.verify(c, RoleTeacher, "Access denied. Teacher token required.")
		if !ok {
			return
		}
		teacher, err := g.teachers.TeacherByID(c.Request.Context(), claims.ID)
		if err != nil {
			g.log.Error("teacher lookup failed", zap.Int("id", claims.ID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Server error during authentication."})
			return
		}
		if teacher == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token. Teacher not found."})
			return
		}
		c.Set(ctxTeacher, teacher)
		c.Next()
	}
}

// RequireStudent admits only requests carrying a live student credential.
func (g *Guard) RequireStudent() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := g.verify(c, RoleStudent, "Access denied. Student token required.")
		if !ok {
			return
		}
		student, err := g.students.StudentByID(c.Request.Context(), claims.ID)
		if err != nil {
			g.log.Error("student lookup failed", zap.Int("id", claims.ID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Server error during authentication."})
			return
		}
		if student == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token. Student not found."})
			return
		}
		c.Set(ctxStudent, student)
		c.Next()
	}
}

// verify runs the shared token checks: bearer extraction, signature and
// expiry, then the role claim. Aborts the request and returns false on
// any failure.
func (g *Guard) verify(c *gin.Context, role, mismatchMsg string) (Claims, bool) {
	authz := c.GetHeader("Authorization")
	if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access denied. No token provided."})
		return Claims{}, false
	}
	raw := strings.TrimSpace(authz[len("bearer "):])

	claims, err := g.verifier.Verify(raw)
	if err != nil {
		msg := "Invalid token."
		if errors.Is(err, ErrTokenExpired) {
			msg = "Token expired."
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
		return Claims{}, false
	}
	if claims.Role != role {
		// Valid credential, wrong audience: forbidden, not unauthenticated.
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": mismatchMsg})
		return Claims{}, false
	}
	return claims, true
}

// TeacherFrom returns the teacher attached by RequireTeacher.
func TeacherFrom(c *gin.Context) *model.Teacher {
	if v, ok := c.Get(ctxTeacher); ok {
		if t, ok := v.(*model.Teacher); ok {
			return t
		}
	}
	return nil
}

// StudentFrom returns the student attached by RequireStudent.
func StudentFrom(c *gin.Context) *model.Student {
	if v, ok := c.Get(ctxStudent); ok {
		if s, ok := v.(*model.Student); ok {
			return s
		}
	}
	return nil
}

package identity

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"attendance/internal/auth"
	"attendance/internal/model"
)

var (
	// ErrDuplicateEmail means the email is already registered for the role.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrInvalidCredentials is returned for both an unknown email and a
	// wrong password, so callers cannot enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Store is the persistence contract the identity service runs on.
// *Repository is the Postgres implementation.
type Store interface {
	CreateTeacher(ctx context.Context, name, email, passwordHash, subject string) (*model.Teacher, error)
	TeacherByEmail(ctx context.Context, email string) (*model.Teacher, string, error)
	TeacherEmailExists(ctx context.Context, email string) (bool, error)
	CreateStudent(ctx context.Context, name, email, passwordHash, branch string, year int) (*model.Student, error)
	StudentByEmail(ctx context.Context, email string) (*model.Student, string, error)
	StudentEmailExists(ctx context.Context, email string) (bool, error)
	ListStudents(ctx context.Context) ([]model.Student, error)
}

// Service registers and authenticates actors, issuing a session
// credential on success. Hashing and signing are injected capabilities.
type Service struct {
	repo   Store
	hasher auth.PasswordHasher
	tokens auth.TokenIssuer
	log    *zap.Logger
}

// NewService creates an identity service.
func NewService(repo Store, hasher auth.PasswordHasher, tokens auth.TokenIssuer, log *zap.Logger) *Service {
	return &Service{repo: repo, hasher: hasher, tokens: tokens, log: log}
}

// RegisterTeacher persists a new teacher and issues their first token.
func (s *Service) RegisterTeacher(ctx context.Context, name, email, password, subject string) (*model.Teacher, string, error) {
	exists, err := s.repo.TeacherEmailExists(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("check teacher email: %w", err)
	}
	if exists {
		return nil, "", ErrDuplicateEmail
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	teacher, err := s.repo.CreateTeacher(ctx, name, email, hash, subject)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, "", ErrDuplicateEmail
		}
		return nil, "", fmt.Errorf("create teacher: %w", err)
	}

	token, err := s.tokens.Issue(teacher.ID, teacher.Email, auth.RoleTeacher)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	s.log.Info("teacher registered", zap.Int("id", teacher.ID), zap.String("subject", teacher.Subject))
	return teacher, token, nil
}

// LoginTeacher checks credentials and issues a fresh token.
func (s *Service) LoginTeacher(ctx context.Context, email, password string) (*model.Teacher, string, error) {
	teacher, hash, err := s.repo.TeacherByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("teacher lookup: %w", err)
	}
	if teacher == nil || !s.hasher.Verify(hash, password) {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(teacher.ID, teacher.Email, auth.RoleTeacher)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return teacher, token, nil
}

// RegisterStudent persists a new student and issues their first token.
func (s *Service) RegisterStudent(ctx context.Context, name, email, password, branch string, year int) (*model.Student, string, error) {
	exists, err := s.repo.StudentEmailExists(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("check student email: %w", err)
	}
	if exists {
		return nil, "", ErrDuplicateEmail
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	student, err := s.repo.CreateStudent(ctx, name, email, hash, branch, year)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, "", ErrDuplicateEmail
		}
		return nil, "", fmt.Errorf("create student: %w", err)
	}

	token, err := s.tokens.Issue(student.ID, student.Email, auth.RoleStudent)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	s.log.Info("student registered", zap.Int("id", student.ID), zap.String("branch", student.Branch))
	return student, token, nil
}

// LoginStudent checks credentials and issues a fresh token.
func (s *Service) LoginStudent(ctx context.Context, email, password string) (*model.Student, string, error) {
	student, hash, err := s.repo.StudentByEmail(ctx, email)
	if err != nil {
		return nil, "", fmt.Errorf("student lookup: %w", err)
	}
	if student == nil || !s.hasher.Verify(hash, password) {
		return nil, "", ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(student.ID, student.Email, auth.RoleStudent)
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return student, token, nil
}

// Students returns the full roster ordered by name.
func (s *Service) Students(ctx context.Context) ([]model.Student, error) {
	return s.repo.ListStudents(ctx)
}

package model

import "time"

// Teacher is a registered teacher. The password hash never leaves the
// identity layer and is not part of this struct.
type Teacher struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Student is a registered student.
type Student struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Branch    string    `json:"branch"`
	Year      int       `json:"year"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// AttendanceRecord is one mark on the ledger. At most one record exists
// per (student_id, teacher_id, subject, date).
type AttendanceRecord struct {
	ID        int       `json:"id"`
	StudentID int       `json:"student_id"`
	TeacherID int       `json:"teacher_id"`
	Subject   string    `json:"subject"`
	Date      time.Time `json:"date"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

package slip

import "time"

// Status is the review state of a slip.
type Status string

const (
	StatusPending  Status = "pending"
	StatusReviewed Status = "reviewed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusReviewed
}

// Slip is one beadle report for one class.
type Slip struct {
	ID               int64      `json:"id"`
	SubmittedBy      int64      `json:"submitted_by"`
	FormClass        string     `json:"form_class"`
	Subject          string     `json:"subject"`
	TeacherName      string     `json:"teacher_name"`
	ClassDate        string     `json:"class_date"` // YYYY-MM-DD
	Period           int        `json:"period"`
	DoubleSession    bool       `json:"double_session"`
	TeacherPresent   bool       `json:"teacher_present"`
	TeacherArrivedAt string     `json:"teacher_arrived_at,omitempty"` // HH:MM
	AbsentCount      int        `json:"absent_count"`
	Notes            string     `json:"notes"`
	Status           Status     `json:"status"`
	ReviewedBy       *int64     `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time `json:"reviewed_at,omitempty"`
	ReviewComment    string     `json:"review_comment,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Filter narrows List. Zero values match everything. From and To are
// inclusive YYYY-MM-DD bounds on ClassDate.
type Filter struct {
	SubmittedBy int64
	FormClass   string
	Status      Status
	From        string
	To          string
	Limit       int
	Offset      int
}

// Page limits for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

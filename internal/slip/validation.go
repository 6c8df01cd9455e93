package slip

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	maxFormClassLength = 20
	maxNameLength      = 100
	maxNotesLength     = 2000
	maxAbsentCount     = 60
)

// Normalize trims the free-text fields of s in place.
func Normalize(s *Slip) {
	s.FormClass = strings.ToUpper(strings.TrimSpace(s.FormClass))
	s.Subject = strings.TrimSpace(s.Subject)
	s.TeacherName = strings.TrimSpace(s.TeacherName)
	s.TeacherArrivedAt = strings.TrimSpace(s.TeacherArrivedAt)
	s.Notes = strings.TrimSpace(s.Notes)
}

// Validate checks a slip against the bell schedule before it is stored.
func Validate(s *Slip, schedule *Schedule) error {
	if err := requiredText("form_class", s.FormClass, maxFormClassLength); err != nil {
		return err
	}
	if err := requiredText("subject", s.Subject, maxNameLength); err != nil {
		return err
	}
	if err := requiredText("teacher_name", s.TeacherName, maxNameLength); err != nil {
		return err
	}
	if _, err := time.Parse(time.DateOnly, s.ClassDate); err != nil {
		return fmt.Errorf("%w: class_date must be YYYY-MM-DD", ErrInvalidSlip)
	}
	if s.AbsentCount < 0 || s.AbsentCount > maxAbsentCount {
		return fmt.Errorf("%w: absent_count must be between 0 and %d", ErrInvalidSlip, maxAbsentCount)
	}
	if utf8.RuneCountInString(s.Notes) > maxNotesLength {
		return fmt.Errorf("%w: notes exceed %d characters", ErrInvalidSlip, maxNotesLength)
	}

	if _, err := schedule.ClassTime(s.Period, s.DoubleSession); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSlip, err)
	}

	switch {
	case !s.TeacherPresent && s.TeacherArrivedAt != "":
		return fmt.Errorf("%w: teacher_arrived_at given for an absent teacher", ErrInvalidSlip)
	case s.TeacherArrivedAt != "":
		if _, err := ParseClock(s.TeacherArrivedAt); err != nil {
			return fmt.Errorf("%w: teacher_arrived_at: %w", ErrInvalidSlip, err)
		}
	}
	return nil
}

func requiredText(field, value string, maxLen int) error {
	if value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalidSlip, field)
	}
	if utf8.RuneCountInString(value) > maxLen {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidSlip, field, maxLen)
	}
	return nil
}

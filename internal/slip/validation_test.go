package slip

import (
	"errors"
	"strings"
	"testing"
)

func validSlip() *Slip {
	return &Slip{
		FormClass:        "4B",
		Subject:          "Chemistry",
		TeacherName:      "Mr. Brown",
		ClassDate:        "2026-09-08",
		Period:           3,
		TeacherPresent:   true,
		TeacherArrivedAt: "09:25",
		AbsentCount:      2,
	}
}

func TestValidate(t *testing.T) {
	s := testSchedule(t)

	tests := []struct {
		name    string
		mutate  func(*Slip)
		wantErr bool
	}{
		{"valid", func(*Slip) {}, false},
		{"valid double", func(sl *Slip) { sl.Period = 1; sl.DoubleSession = true }, false},
		{"absent teacher", func(sl *Slip) { sl.TeacherPresent = false; sl.TeacherArrivedAt = "" }, false},
		{"no arrival time", func(sl *Slip) { sl.TeacherArrivedAt = "" }, false},
		{"missing form class", func(sl *Slip) { sl.FormClass = "" }, true},
		{"long form class", func(sl *Slip) { sl.FormClass = strings.Repeat("A", 21) }, true},
		{"missing subject", func(sl *Slip) { sl.Subject = "" }, true},
		{"missing teacher", func(sl *Slip) { sl.TeacherName = "" }, true},
		{"bad date", func(sl *Slip) { sl.ClassDate = "08/09/2026" }, true},
		{"impossible date", func(sl *Slip) { sl.ClassDate = "2026-02-30" }, true},
		{"negative absent", func(sl *Slip) { sl.AbsentCount = -1 }, true},
		{"too many absent", func(sl *Slip) { sl.AbsentCount = 61 }, true},
		{"unknown period", func(sl *Slip) { sl.Period = 12 }, true},
		{"double across break", func(sl *Slip) { sl.DoubleSession = true }, true},
		{"arrival for absent teacher", func(sl *Slip) { sl.TeacherPresent = false }, true},
		{"bad arrival", func(sl *Slip) { sl.TeacherArrivedAt = "half nine" }, true},
		{"long notes", func(sl *Slip) { sl.Notes = strings.Repeat("n", 2001) }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sl := validSlip()
			tt.mutate(sl)
			err := Validate(sl, s)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSlip) {
				t.Errorf("error = %v, want ErrInvalidSlip", err)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	sl := &Slip{FormClass: " 4b ", Subject: " Chemistry\n", TeacherName: "  Mr. Brown", Notes: " late start "}
	Normalize(sl)

	if sl.FormClass != "4B" || sl.Subject != "Chemistry" || sl.TeacherName != "Mr. Brown" || sl.Notes != "late start" {
		t.Errorf("Normalize() = %+v", sl)
	}
}

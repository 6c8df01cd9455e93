package slip

import (
	"fmt"
	"time"

	"github.com/campioncollege/beadle-core/internal/infrastructure/config"
)

// Clock is a time of day in minutes after midnight.
type Clock int

// ParseClock parses 24-hour "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil || len(s) != len("15:04") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidClock, s)
	}
	return Clock(t.Hour()*60 + t.Minute()), nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// MarshalText renders the clock as HH:MM.
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Period is one slot of the bell schedule.
type Period struct {
	Number int   `json:"number"`
	Start  Clock `json:"start"`
	End    Clock `json:"end"`
}

// ClassTime is the span of a single or double class.
type ClassTime struct {
	Period int   `json:"period"`
	Double bool  `json:"double_session"`
	Start  Clock `json:"start"`
	End    Clock `json:"end"`
}

// Minutes returns the class length.
func (ct ClassTime) Minutes() int {
	return int(ct.End - ct.Start)
}

// Arrival classifies when a teacher turned up relative to class start.
type Arrival struct {
	OnTime      bool `json:"on_time"`
	MinutesLate int  `json:"minutes_late"`
}

// Schedule is an immutable daily bell schedule.
type Schedule struct {
	periods  []Period
	location *time.Location
}

// NewSchedule builds a schedule from the school configuration. Periods
// must be numbered 1..n in order, each ending after it starts and none
// overlapping the next.
func NewSchedule(cfg config.SchoolConfig) (*Schedule, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", cfg.Timezone, err)
	}
	if len(cfg.Periods) == 0 {
		return nil, fmt.Errorf("bell schedule has no periods")
	}

	s := &Schedule{periods: make([]Period, 0, len(cfg.Periods)), location: loc}
	for i, pc := range cfg.Periods {
		if pc.Number != i+1 {
			return nil, fmt.Errorf("period %d is numbered %d", i+1, pc.Number)
		}
		start, err := ParseClock(pc.Start)
		if err != nil {
			return nil, fmt.Errorf("period %d start: %w", pc.Number, err)
		}
		end, err := ParseClock(pc.End)
		if err != nil {
			return nil, fmt.Errorf("period %d end: %w", pc.Number, err)
		}
		if end <= start {
			return nil, fmt.Errorf("period %d ends before it starts", pc.Number)
		}
		if i > 0 && start < s.periods[i-1].End {
			return nil, fmt.Errorf("period %d overlaps period %d", pc.Number, i)
		}
		s.periods = append(s.periods, Period{Number: pc.Number, Start: start, End: end})
	}
	return s, nil
}

// Periods returns a copy of the bell schedule.
func (s *Schedule) Periods() []Period {
	out := make([]Period, len(s.periods))
	copy(out, s.periods)
	return out
}

// Location returns the school's time zone.
func (s *Schedule) Location() *time.Location {
	return s.location
}

// ClassTime returns the start and end of a class in period p. A double
// session runs from the start of p to the end of p+1 and is only possible
// when p+1 exists and begins as p ends.
func (s *Schedule) ClassTime(p int, double bool) (ClassTime, error) {
	if p < 1 || p > len(s.periods) {
		return ClassTime{}, fmt.Errorf("%w: %d", ErrUnknownPeriod, p)
	}
	first := s.periods[p-1]
	ct := ClassTime{Period: p, Double: double, Start: first.Start, End: first.End}
	if !double {
		return ct, nil
	}

	if p == len(s.periods) {
		return ClassTime{}, fmt.Errorf("%w: period %d is the last of the day", ErrInvalidDouble, p)
	}
	second := s.periods[p]
	if second.Start != first.End {
		return ClassTime{}, fmt.Errorf("%w: break between periods %d and %d", ErrInvalidDouble, p, p+1)
	}
	ct.End = second.End
	return ct, nil
}

// ClassifyArrival compares a teacher's arrival with the class start.
// Arriving at or before the start is on time.
func (s *Schedule) ClassifyArrival(p int, double bool, arrived Clock) (Arrival, error) {
	ct, err := s.ClassTime(p, double)
	if err != nil {
		return Arrival{}, err
	}
	if arrived <= ct.Start {
		return Arrival{OnTime: true}, nil
	}
	return Arrival{MinutesLate: int(arrived - ct.Start)}, nil
}

// On returns the class start and end as instants on date in the school's
// time zone. date is YYYY-MM-DD.
func (s *Schedule) On(date string, ct ClassTime) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(time.DateOnly, date, s.location)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parsing date %q: %w", date, err)
	}
	at := func(c Clock) time.Time {
		return time.Date(day.Year(), day.Month(), day.Day(), int(c)/60, int(c)%60, 0, 0, s.location)
	}
	return at(ct.Start), at(ct.End), nil
}

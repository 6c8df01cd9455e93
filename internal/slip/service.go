package slip

import (
	"context"
	"fmt"
)

// Service files and reviews slips against the school's bell schedule.
type Service struct {
	repo     Repository
	schedule *Schedule
}

// NewService creates a Service.
func NewService(repo Repository, schedule *Schedule) *Service {
	return &Service{repo: repo, schedule: schedule}
}

// Schedule returns the bell schedule slips are validated against.
func (s *Service) Schedule() *Schedule {
	return s.schedule
}

// Submit validates a slip filed by submitter and stores it as pending.
func (s *Service) Submit(ctx context.Context, submitter int64, in *Slip) error {
	Normalize(in)
	in.SubmittedBy = submitter
	if err := Validate(in, s.schedule); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, in); err != nil {
		return fmt.Errorf("submitting slip: %w", err)
	}
	return nil
}

// Get returns one slip.
func (s *Service) Get(ctx context.Context, id int64) (*Slip, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns one page of slips matching f and the total match count.
func (s *Service) List(ctx context.Context, f Filter) ([]Slip, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrInvalidSlip, f.Status)
	}
	total, err := s.repo.Count(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	slips, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, 0, err
	}
	return slips, total, nil
}

// Review marks a slip reviewed by reviewer.
func (s *Service) Review(ctx context.Context, id, reviewer int64, comment string) (*Slip, error) {
	return s.repo.Review(ctx, id, reviewer, comment)
}

// Lateness classifies the teacher's arrival for a stored slip. It reports
// false when the teacher was absent or no arrival time was recorded.
func (s *Service) Lateness(sl *Slip) (Arrival, bool) {
	if !sl.TeacherPresent || sl.TeacherArrivedAt == "" {
		return Arrival{}, false
	}
	arrived, err := ParseClock(sl.TeacherArrivedAt)
	if err != nil {
		return Arrival{}, false
	}
	a, err := s.schedule.ClassifyArrival(sl.Period, sl.DoubleSession, arrived)
	if err != nil {
		return Arrival{}, false
	}
	return a, true
}

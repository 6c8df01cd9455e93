package api

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/campioncollege/beadle-core/internal/audit"
	"github.com/campioncollege/beadle-core/internal/auth"
	"github.com/campioncollege/beadle-core/internal/infrastructure/mqtt"
	"github.com/campioncollege/beadle-core/internal/slip"
)

// Roles that may read every slip. A slip's submitter may always read it.
var slipReaders = []string{auth.RoleSupervisor, auth.RoleStaff, auth.RoleAdmin}

type submitSlipRequest struct {
	FormClass        string `json:"form_class" validate:"required,max=20"`
	Subject          string `json:"subject" validate:"required,max=100"`
	TeacherName      string `json:"teacher_name" validate:"required,max=100"`
	ClassDate        string `json:"class_date" validate:"required,datetime=2006-01-02"`
	Period           int    `json:"period" validate:"required,min=1"`
	DoubleSession    bool   `json:"double_session"`
	TeacherPresent   *bool  `json:"teacher_present" validate:"required"`
	TeacherArrivedAt string `json:"teacher_arrived_at" validate:"omitempty,len=5"`
	AbsentCount      int    `json:"absent_count" validate:"min=0,max=60"`
	Notes            string `json:"notes" validate:"max=2000"`
}

type reviewSlipRequest struct {
	Comment string `json:"comment" validate:"max=2000"`
}

// slipView is a slip with the teacher's lateness worked out against the
// bell schedule.
type slipView struct {
	*slip.Slip
	Arrival *slip.Arrival `json:"arrival,omitempty"`
}

type slipListResponse struct {
	Slips  []slipView `json:"slips"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

func (s *Server) viewOf(sl *slip.Slip) slipView {
	v := slipView{Slip: sl}
	if a, ok := s.slips.Lateness(sl); ok {
		v.Arrival = &a
	}
	return v
}

// handleSubmitSlip files a slip for the calling beadle.
func (s *Server) handleSubmitSlip(w http.ResponseWriter, r *http.Request) {
	var req submitSlipRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c := callerFromContext(r.Context())
	sl := &slip.Slip{
		FormClass:        req.FormClass,
		Subject:          req.Subject,
		TeacherName:      req.TeacherName,
		ClassDate:        req.ClassDate,
		Period:           req.Period,
		DoubleSession:    req.DoubleSession,
		TeacherPresent:   *req.TeacherPresent,
		TeacherArrivedAt: req.TeacherArrivedAt,
		AbsentCount:      req.AbsentCount,
		Notes:            req.Notes,
	}
	if err := s.slips.Submit(r.Context(), c.User.ID, sl); err != nil {
		if isSlipInputError(err) {
			writeValidationError(w, err.Error())
			return
		}
		s.logger.Error("submit slip failed", "user_id", c.User.ID, "error", err)
		writeInternalError(w, "failed to submit slip")
		return
	}

	view := s.viewOf(sl)
	minutesLate := -1
	if view.Arrival != nil {
		minutesLate = view.Arrival.MinutesLate
	}
	s.influx.WriteSlip(sl.FormClass, sl.Period, sl.TeacherPresent, sl.AbsentCount, minutesLate)
	s.record(audit.ActionSlipSubmit, audit.EntitySlip, sl.ID, c.User.ID, map[string]any{
		"form_class": sl.FormClass,
		"class_date": sl.ClassDate,
		"period":     sl.Period,
	})
	s.publish(mqtt.EventSlipSubmitted, view)

	writeJSON(w, http.StatusCreated, view)
}

// handleListMySlips returns the caller's own slips.
func (s *Server) handleListMySlips(w http.ResponseWriter, r *http.Request) {
	f, ok := slipFilter(w, r.URL.Query())
	if !ok {
		return
	}
	f.SubmittedBy = callerFromContext(r.Context()).User.ID
	s.listSlips(w, r, f)
}

// handleListSlips returns slips across all beadles.
//
// Query parameters: form_class, status, from, to (YYYY-MM-DD, inclusive),
// submitted_by, limit (default 50, max 200), offset.
func (s *Server) handleListSlips(w http.ResponseWriter, r *http.Request) {
	f, ok := slipFilter(w, r.URL.Query())
	if !ok {
		return
	}
	if v := r.URL.Query().Get("submitted_by"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeBadRequest(w, "invalid submitted_by")
			return
		}
		f.SubmittedBy = id
	}
	s.listSlips(w, r, f)
}

func (s *Server) listSlips(w http.ResponseWriter, r *http.Request, f slip.Filter) {
	slips, total, err := s.slips.List(r.Context(), f)
	if err != nil {
		if errors.Is(err, slip.ErrInvalidSlip) {
			writeValidationError(w, err.Error())
			return
		}
		s.logger.Error("list slips failed", "error", err)
		writeInternalError(w, "failed to list slips")
		return
	}

	views := make([]slipView, len(slips))
	for i := range slips {
		views[i] = s.viewOf(&slips[i])
	}
	writeJSON(w, http.StatusOK, slipListResponse{
		Slips:  views,
		Total:  total,
		Limit:  f.Limit,
		Offset: f.Offset,
	})
}

// handleGetSlip returns one slip to a reader role or to its submitter.
func (s *Server) handleGetSlip(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "slip")
	if !ok {
		return
	}

	sl, err := s.slips.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, slip.ErrSlipNotFound) {
			writeNotFound(w, "slip not found")
			return
		}
		s.logger.Error("get slip failed", "slip_id", id, "error", err)
		writeInternalError(w, "failed to get slip")
		return
	}

	c := callerFromContext(r.Context())
	if sl.SubmittedBy != c.User.ID && !c.holdsAny(slipReaders...) {
		writePermissionDenied(w, slipReaders, auth.MatchAny)
		return
	}

	writeJSON(w, http.StatusOK, s.viewOf(sl))
}

// handleReviewSlip marks a pending slip reviewed.
func (s *Server) handleReviewSlip(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "slip")
	if !ok {
		return
	}
	var req reviewSlipRequest
	if !decodeBody(w, r, &req) {
		return
	}

	c := callerFromContext(r.Context())
	sl, err := s.slips.Review(r.Context(), id, c.User.ID, req.Comment)
	if err != nil {
		switch {
		case errors.Is(err, slip.ErrSlipNotFound):
			writeNotFound(w, "slip not found")
		case errors.Is(err, slip.ErrAlreadyReviewed):
			writeConflict(w, "slip already reviewed")
		default:
			s.logger.Error("review slip failed", "slip_id", id, "error", err)
			writeInternalError(w, "failed to review slip")
		}
		return
	}

	view := s.viewOf(sl)
	s.record(audit.ActionSlipReview, audit.EntitySlip, sl.ID, c.User.ID, map[string]any{
		"comment": sl.ReviewComment,
	})
	s.publish(mqtt.EventSlipReviewed, view)

	writeJSON(w, http.StatusOK, view)
}

// handleClassTime answers "when does this class run" from the bell schedule.
//
// Query parameters: period (required), double (bool), arrived (HH:MM) to
// classify a teacher's arrival, date (YYYY-MM-DD) to get absolute instants.
func (s *Server) handleClassTime(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	period, err := strconv.Atoi(q.Get("period"))
	if err != nil {
		writeBadRequest(w, "period is required")
		return
	}
	double := false
	if v := q.Get("double"); v != "" {
		if double, err = strconv.ParseBool(v); err != nil {
			writeBadRequest(w, "invalid double")
			return
		}
	}

	sched := s.slips.Schedule()
	ct, err := sched.ClassTime(period, double)
	if err != nil {
		writeValidationError(w, err.Error())
		return
	}

	resp := map[string]any{
		"class_time": ct,
		"minutes":    ct.Minutes(),
		"timezone":   sched.Location().String(),
	}

	if v := q.Get("arrived"); v != "" {
		arrived, err := slip.ParseClock(v)
		if err != nil {
			writeValidationError(w, err.Error())
			return
		}
		a, err := sched.ClassifyArrival(period, double, arrived)
		if err != nil {
			writeValidationError(w, err.Error())
			return
		}
		resp["arrival"] = a
	}

	if v := q.Get("date"); v != "" {
		start, end, err := sched.On(v, ct)
		if err != nil {
			writeValidationError(w, "date must be YYYY-MM-DD")
			return
		}
		resp["starts_at"] = start
		resp["ends_at"] = end
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleSchedule returns the bell schedule.
func (s *Server) handleSchedule(w http.ResponseWriter, _ *http.Request) {
	sched := s.slips.Schedule()
	writeJSON(w, http.StatusOK, map[string]any{
		"periods":  sched.Periods(),
		"timezone": sched.Location().String(),
	})
}

// slipFilter reads the shared list query parameters.
func slipFilter(w http.ResponseWriter, q url.Values) (slip.Filter, bool) {
	f := slip.Filter{
		FormClass: q.Get("form_class"),
		Status:    slip.Status(q.Get("status")),
		From:      q.Get("from"),
		To:        q.Get("to"),
		Limit:     slip.DefaultLimit,
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "invalid limit")
			return f, false
		}
		f.Limit = min(n, slip.MaxLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, "invalid offset")
			return f, false
		}
		f.Offset = n
	}
	return f, true
}

// isSlipInputError reports whether err describes a bad slip rather than a
// storage failure.
func isSlipInputError(err error) bool {
	return errors.Is(err, slip.ErrInvalidSlip) ||
		errors.Is(err, slip.ErrUnknownPeriod) ||
		errors.Is(err, slip.ErrInvalidDouble) ||
		errors.Is(err, slip.ErrInvalidClock)
}

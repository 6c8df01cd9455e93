package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementAuthDecisions = "auth_decisions"
	MeasurementLogins        = "logins"
	MeasurementSlips         = "slips"
)

// WriteAuthDecision records one gate check. requirement is the rendered
// requirement (e.g. "ANY(admin,tech_team)") and reason is empty when allowed.
func (c *Client) WriteAuthDecision(route, requirement string, allowed bool, reason string) {
	c.write(authDecisionPoint(route, requirement, allowed, reason, time.Now()))
}

// WriteLogin records a login or signup attempt. method is "login" or "signup".
func (c *Client) WriteLogin(method string, success bool) {
	c.write(loginPoint(method, success, time.Now()))
}

// WriteSlip records a submitted slip. minutesLate is negative when the
// arrival time was not recorded.
func (c *Client) WriteSlip(formClass string, period int, teacherPresent bool, absentCount, minutesLate int) {
	c.write(slipPoint(formClass, period, teacherPresent, absentCount, minutesLate, time.Now()))
}

func (c *Client) write(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

func authDecisionPoint(route, requirement string, allowed bool, reason string, at time.Time) *write.Point {
	outcome := "allowed"
	if !allowed {
		outcome = "denied"
	}
	tags := map[string]string{
		"route":       route,
		"requirement": requirement,
		"outcome":     outcome,
	}
	if reason != "" {
		tags["reason"] = reason
	}
	return write.NewPoint(MeasurementAuthDecisions, tags, map[string]any{"count": 1}, at)
}

func loginPoint(method string, success bool, at time.Time) *write.Point {
	return write.NewPoint(MeasurementLogins,
		map[string]string{"method": method},
		map[string]any{"success": success},
		at,
	)
}

func slipPoint(formClass string, period int, teacherPresent bool, absentCount, minutesLate int, at time.Time) *write.Point {
	fields := map[string]any{
		"teacher_present": teacherPresent,
		"absent_count":    absentCount,
		"period":          period,
	}
	if minutesLate >= 0 {
		fields["minutes_late"] = minutesLate
	}
	return write.NewPoint(MeasurementSlips, map[string]string{"form_class": formClass}, fields, at)
}

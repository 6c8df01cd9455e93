// Package audit records who did what: logins, signups, role changes and
// slip submissions and reviews.
//
// Handlers hand entries to a Recorder, which writes them to the audit_logs
// table from a background goroutine so a slow disk never delays a
// response. Recording is best effort: when the queue is full the entry is
// dropped and counted.
package audit

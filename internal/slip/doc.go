// Package slip records beadle slips: per-class reports a beadle files for
// their form class saying whether the teacher came, when they arrived and
// how many students were absent.
//
// Supervisors review pending slips once. The package also carries the bell
// schedule used to turn a period number into class times, including double
// sessions that span two adjacent periods.
//
// # Thread Safety
//
// SQLiteRepository and Schedule are safe for concurrent use.
package slip

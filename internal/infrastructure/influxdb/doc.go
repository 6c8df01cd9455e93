// Package influxdb writes beadle activity telemetry to InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Three measurements
// are written:
//   - auth_decisions: every gate check, tagged by requirement and outcome
//   - logins: login and signup attempts and whether they succeeded
//   - slips: submitted slips with absences and teacher lateness
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteLogin("password", true)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking and
// batched according to batch_size and flush_interval; write errors arrive
// through the SetOnError callback. Every write method is a no-op on a nil
// or closed client, so callers need not check whether telemetry is enabled.
package influxdb

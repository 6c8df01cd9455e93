// Package mqtt publishes beadle domain events to an MQTT broker.
//
// Other campus systems (the attendance office display, the notification
// relay) subscribe to these topics instead of polling the API:
//
//	beadle/events/{kind}   role changes, slip submissions and reviews
//	beadle/system/status   retained online/offline status with LWT
//
// The client reconnects with backoff on its own. Publishing while the
// broker is unreachable fails fast with ErrNotConnected; events are not
// queued.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, logger)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.PublishEvent(mqtt.EventSlipSubmitted, slip)
package mqtt

package mqtt

import "fmt"

// Topic prefixes.
const (
	// TopicPrefix is the root of every beadle topic.
	TopicPrefix = "beadle"

	// TopicPrefixEvents is the base for domain events.
	TopicPrefixEvents = TopicPrefix + "/events"

	// TopicPrefixSystem is the base for service status topics.
	TopicPrefixSystem = TopicPrefix + "/system"
)

// Event kinds published under TopicPrefixEvents.
const (
	EventRolesChanged  = "roles_changed"
	EventSlipSubmitted = "slip_submitted"
	EventSlipReviewed  = "slip_reviewed"
)

// Topics provides builders for beadle MQTT topics.
//
//	topic := mqtt.Topics{}.Event(mqtt.EventSlipSubmitted)
//	// Returns: "beadle/events/slip_submitted"
type Topics struct{}

// Event returns the topic for one kind of domain event.
//
// Example: beadle/events/roles_changed
func (Topics) Event(kind string) string {
	return fmt.Sprintf("%s/%s", TopicPrefixEvents, kind)
}

// SystemStatus returns the retained service status topic.
//
// Example: beadle/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllEvents returns a pattern matching every domain event, for subscribers.
//
// Pattern: beadle/events/+
func (Topics) AllEvents() string {
	return fmt.Sprintf("%s/+", TopicPrefixEvents)
}

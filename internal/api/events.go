package api

// publish fans a domain event out to WebSocket subscribers of kind and,
// when the broker is connected, to beadle/events/{kind}. Delivery is
// best-effort; a failed publish never fails the request that caused it.
func (s *Server) publish(kind string, data any) {
	s.hub.Broadcast(kind, data)

	if !s.mqtt.IsConnected() {
		return
	}
	if err := s.mqtt.PublishEvent(kind, data); err != nil {
		s.logger.Warn("publishing event failed", "kind", kind, "error", err)
	}
}

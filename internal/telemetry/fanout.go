package telemetry

// Publisher accepts events without blocking.
type Publisher interface {
	Publish(ev any)
}

// Fanout publishes every event to each of its publishers.
type Fanout []Publisher

func (f Fanout) Publish(ev any) {
	for _, p := range f {
		if p != nil {
			p.Publish(ev)
		}
	}
}

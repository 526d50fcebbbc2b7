package events

// Fanout delivers each event to every wrapped emitter in order.
type Fanout []Emitter

// Emit implements Emitter.
func (f Fanout) Emit(evt Event) {
	for _, target := range f {
		if target == nil {
			continue
		}
		target.Emit(evt)
	}
}

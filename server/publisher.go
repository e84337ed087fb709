package server

import "github.com/shrtyk/rsm/api"

// publisher fans Publish events out to the sinks subscribed for a session
// (C6). Delivery is best-effort: an event for a session with no sink is
// dropped. OnPublish is called synchronously on the executor goroutine, so
// a sink that blocks holds up the executor.
type publisher struct {
	sinks map[int64][]api.PublishSink
}

func newPublisher() *publisher {
	return &publisher{sinks: make(map[int64][]api.PublishSink)}
}

// subscribe must run on the executor goroutine, and so must the returned
// unsubscribe func (Executor.Subscribe posts it through submitTask).
// Calling unsubscribe more than once is harmless.
func (p *publisher) subscribe(sessionID int64, sink api.PublishSink) func() {
	p.sinks[sessionID] = append(p.sinks[sessionID], sink)
	unsubscribed := false
	return func() {
		if unsubscribed {
			return
		}
		unsubscribed = true
		p.remove(sessionID, sink)
	}
}

func (p *publisher) remove(sessionID int64, sink api.PublishSink) {
	sinks := p.sinks[sessionID]
	for i, s := range sinks {
		if s == sink {
			p.sinks[sessionID] = append(sinks[:i], sinks[i+1:]...)
			break
		}
	}
	if len(p.sinks[sessionID]) == 0 {
		delete(p.sinks, sessionID)
	}
}

// publish delivers payload to every sink subscribed for sessionID. Must run
// on the executor goroutine: sink.OnPublish is a user callback and shares
// the same non-reentrancy guarantee as Apply/Register/Expire/Filter.
func (p *publisher) publish(sessionID int64, payload []byte) {
	for _, sink := range p.sinks[sessionID] {
		sink.OnPublish(&api.PublishMessage{SessionID: sessionID, Payload: payload})
	}
}

package server

// Relay kinds.
const (
	RelaySession      = "session"
	RelaySessionEnded = "session_ended"
	RelayAdmins       = "admins"
)

// Relay is a broadcast forwarded to other instances so they can deliver it
// to their own local connections.
type Relay struct {
	Kind      string         `json:"kind"`
	SessionId int            `json:"sessionId,omitempty"`
	AdminIds  []int          `json:"adminIds,omitempty"`
	Message   *ServerMessage `json:"message"`
}

// Bridge publishes relays to other instances. Publish is called from the
// event loop and must not block on the network.
type Bridge interface {
	Publish(r Relay) error
}

// DeliverRelay hands a relay received from another instance to the event
// loop.
func (cs *ChatServer) DeliverRelay(r Relay) {
	select {
	case cs.relayChan <- r:
	case <-cs.done:
	default:
		cs.log.Warn().Str("kind", r.Kind).Msg("relay channel full, dropping remote broadcast")
	}
}

func (cs *ChatServer) publish(r Relay) {
	if cs.bridge == nil {
		return
	}
	if err := cs.bridge.Publish(r); err != nil {
		cs.log.Warn().Err(err).Str("kind", r.Kind).Int("session_id", r.SessionId).Msg("relay dropped")
	}
}

func (cs *ChatServer) deliverRelay(r Relay) {
	if r.Message == nil {
		return
	}

	switch r.Kind {
	case RelaySession:
		cs.deliver(cs.sessions.Lookup(r.SessionId), r.Message, "")
	case RelaySessionEnded:
		cs.deliver(cs.sessions.Lookup(r.SessionId), r.Message, "")
		cs.teardownSession(r.SessionId)
	case RelayAdmins:
		for _, id := range r.AdminIds {
			cs.deliver(cs.admins.Lookup(id), r.Message, "")
		}
	default:
		cs.log.Warn().Str("kind", r.Kind).Msg("unknown relay kind")
	}
}

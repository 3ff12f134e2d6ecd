package replica

import (
	"log"
	"time"
)

// inboxSize bounds how many inbound events can pile up between two
// Update calls before the reader goroutines block.
const inboxSize = 1024

// An Engine replicates entity state for one role of a session. The
// role is fixed at construction: NewAuthority serves, Dial joins.
// The host game loop calls Update once per frame; all protocol state
// is mutated inside that call and nowhere else.
type Engine interface {
	// Update drains the inbound queue until empty, dispatches every
	// message, advances the dead reckoning timer and fires host
	// events. It never blocks on the network.
	Update() error

	// RequestCreate asks for a new replicated entity carrying state
	// and returns its unique identifier. The authority applies and
	// broadcasts immediately; a client only transmits the request
	// and materializes the entity when the authoritative echo
	// arrives as an ordinary inbound message.
	RequestCreate(state Transfer) (uint64, error)

	// RequestUpdate disseminates new state for an owned entity.
	RequestUpdate(id uint64, state Transfer) error

	// RequestDestroy asks for the removal of an owned entity.
	RequestDestroy(id uint64) error

	// SendGeneric transmits an out-of-band message that is not tied
	// to a live entity. id is free for host use.
	SendGeneric(id uint64, state Transfer) error

	// ClientID returns this peer's client identifier: 1 for the
	// authority, 2-255 for a connected client, 0 before approval.
	ClientID() byte

	Close() error
}

// Handlers are host callbacks fired synchronously on transport status
// transitions, from inside Update (and from Dial for the initial
// Connected). Nil fields are skipped. They are not queued or retried.
type Handlers struct {
	// Connected fires on a client once the authority's approval
	// hail assigned it a client identifier.
	Connected func(clientID byte)

	// Disconnected fires when a connection is gone: on a client for
	// the authority link, on the authority once per departed client.
	Disconnected func(clientID byte)

	// ClientConnected fires on the authority when it approves a new
	// client.
	ClientConnected func(clientID byte)
}

// inEvent is one item of an engine's inbound queue, produced by the
// transport reader goroutines and consumed by Update.
type inEvent struct {
	conn Conn
	data []byte // encoded replication message, nil for the variants below

	join     *joinReq // authority: authenticated connection awaiting approval
	gone     bool     // connection closed
	timedOut bool
}

// joinReq is a connection that passed the ban and authentication
// stages and now needs a client identifier.
type joinReq struct {
	conn Conn
	name string
}

// session is the state shared by both engine roles.
type session struct {
	ts       *Transfers
	ents     *entities
	arena    Arena
	handlers Handlers

	inbox  chan inEvent
	reckon reckonTimer

	started  time.Time
	lastTick time.Time

	diag *diagState
}

func newSession(ts *Transfers, arena Arena, h Handlers, reckonInterval float64) *session {
	now := time.Now()

	return &session{
		ts:       ts,
		ents:     newEntities(),
		arena:    arena,
		handlers: h,
		inbox:    make(chan inEvent, inboxSize),
		reckon:   newReckonTimer(reckonInterval),
		started:  now,
		lastTick: now,
		diag:     &diagState{},
	}
}

// tick returns the seconds elapsed since the previous tick.
func (s *session) tick() float64 {
	now := time.Now()
	dt := now.Sub(s.lastTick).Seconds()
	s.lastTick = now

	return dt
}

// applyCreate transitions an identifier to live. A duplicate create is
// an expected consequence of duplicate delivery: it is logged and the
// existing entity survives untouched.
func (s *session) applyCreate(msg Msg) {
	if _, ok := s.ents.get(msg.ID); ok {
		log.Printf("duplicate create for entity %#x, keeping existing", msg.ID)
		return
	}

	e, err := s.arena.CreateEntity(msg.ID, msg.State)
	if err != nil {
		log.Printf("arena refused entity %#x: %v", msg.ID, err)
		return
	}

	s.ents.add(e)
}

// applyUpdate merges state into a live entity. An update racing ahead
// of its create across the unreliable channel is not an error.
func (s *session) applyUpdate(msg Msg) {
	e, ok := s.ents.get(msg.ID)
	if !ok {
		log.Printf("update for unknown entity %#x, dropped", msg.ID)
		return
	}

	e.ApplyState(msg.State, msg.SentTime, false)
}

// applyReckon accepts an authoritative full-state snapshot. A reckon
// for an absent identifier creates the entity: dead reckoning is the
// correction channel for any create the peer never saw.
func (s *session) applyReckon(msg Msg) {
	e, ok := s.ents.get(msg.ID)
	if !ok {
		s.applyCreate(msg)
		return
	}

	e.ApplyState(msg.State, msg.SentTime, true)
}

// applyDestroy removes a live entity. Destroying an already absent
// identifier tolerates duplicate or out-of-order delivery.
func (s *session) applyDestroy(msg Msg) {
	e, ok := s.ents.remove(msg.ID)
	if !ok {
		log.Printf("destroy for absent entity %#x, ignored", msg.ID)
		return
	}

	s.arena.DestroyEntity(e)
}

func (s *session) applyGeneric(msg Msg) {
	s.arena.GenericMessage(msg.ID, msg.State, msg.SentTime)
}

package replica

// An Entity is the replication-facing view of a host game object. The
// engine holds a non-owning reference; construction and teardown stay
// with the host's Arena.
type Entity interface {
	UniqueID() uint64

	// TransferState snapshots the entity's current state for the
	// wire.
	TransferState() Transfer

	// ApplyState merges a received snapshot. reckon marks a dead
	// reckoning correction that must be accepted unconditionally,
	// bypassing any local smoothing or filtering.
	ApplyState(state Transfer, sentTime float64, reckon bool)
}

// An Arena is the host-side collaborator that owns the actual game
// objects. The engine only tracks identity and relays state.
type Arena interface {
	CreateEntity(id uint64, state Transfer) (Entity, error)
	DestroyEntity(e Entity)

	// GenericMessage delivers an out-of-band message that is not
	// bound to a live entity.
	GenericMessage(id uint64, state Transfer, sentTime float64)
}

// entities maps unique identifiers to live entity references. An
// identifier goes absent -> live -> absent; once removed it is never
// reused, recreation needs a fresh identifier.
type entities struct {
	byID map[uint64]Entity
}

func newEntities() *entities {
	return &entities{byID: make(map[uint64]Entity)}
}

func (es *entities) get(id uint64) (Entity, bool) {
	e, ok := es.byID[id]
	return e, ok
}

func (es *entities) add(e Entity) bool {
	if _, ok := es.byID[e.UniqueID()]; ok {
		return false
	}

	es.byID[e.UniqueID()] = e
	return true
}

func (es *entities) remove(id uint64) (Entity, bool) {
	e, ok := es.byID[id]
	if ok {
		delete(es.byID, id)
	}
	return e, ok
}

func (es *entities) len() int { return len(es.byID) }

// each visits every live entity. Mutating the registry from fn is not
// allowed; collect first if the visit destroys.
func (es *entities) each(fn func(e Entity)) {
	for _, e := range es.byID {
		fn(e)
	}
}

// ownedBy returns the identifiers of all live entities packed with the
// given client identifier.
func (es *entities) ownedBy(clientID byte) []uint64 {
	var ids []uint64
	for id := range es.byID {
		if UnpackClientID(id) == clientID {
			ids = append(ids, id)
		}
	}
	return ids
}

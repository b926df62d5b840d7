package feedsync

import (
	"sync"

	"github.com/golang/glog"
)

// reusable optimistic toggle protocol, applied to like / repost / follow.
// the optimistic write always lands before the rest call is issued, and the
// rest completion is the only writer after that.

type ToggleState struct {
	Value bool
	Count int
}

// authoritative fields from the rest response. nil fields mean the
// optimistic values stand.
type ToggleResponse struct {
	Value *bool
	Count *int
}

type ToggleReadFunction = func() (ToggleState, bool)
type ToggleWriteFunction = func(state ToggleState)
type ToggleRestFunction = func() (*ToggleResponse, error)

type toggleKey struct {
	entityId Id
	relation string
}

const (
	ToggleRelationLike   = "like"
	ToggleRelationRepost = "repost"
	ToggleRelationFollow = "follow"
)

type OptimisticToggleController struct {
	stateLock sync.Mutex
	inFlight  map[toggleKey]bool
}

func NewOptimisticToggleController() *OptimisticToggleController {
	return &OptimisticToggleController{
		inFlight: map[toggleKey]bool{},
	}
}

// a toggle in flight for the same entity and relation suppresses a second
// toggle; two racing rollbacks would be ambiguous about which committed
// value to restore.
func (self *OptimisticToggleController) InFlight(entityId Id, relation string) bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.inFlight[toggleKey{entityId: entityId, relation: relation}]
}

func (self *OptimisticToggleController) Toggle(
	entityId Id,
	relation string,
	read ToggleReadFunction,
	write ToggleWriteFunction,
	restCall ToggleRestFunction,
) error {
	key := toggleKey{entityId: entityId, relation: relation}

	self.stateLock.Lock()
	if self.inFlight[key] {
		self.stateLock.Unlock()
		return ActionInFlight("toggle already in flight")
	}
	self.inFlight[key] = true
	self.stateLock.Unlock()

	defer func() {
		self.stateLock.Lock()
		delete(self.inFlight, key)
		self.stateLock.Unlock()
	}()

	committed, ok := read()
	if !ok {
		return NotFound("unknown toggle entity")
	}

	pending := ToggleState{
		Value: !committed.Value,
	}
	if pending.Value {
		pending.Count = committed.Count + 1
	} else {
		pending.Count = max(0, committed.Count-1)
	}

	// optimistic write, synchronously before the rest call
	write(pending)

	response, err := restCall()
	if err != nil {
		// full rollback, exactly the committed state
		write(committed)
		glog.Infof("[tg]%s %s rollback = %s\n", relation, entityId, err)
		return TransientNetwork("toggle "+relation, err)
	}

	// the server is the tie-break authority when it reports state
	final := pending
	if response != nil {
		if response.Value != nil {
			final.Value = *response.Value
		}
		if response.Count != nil {
			final.Count = *response.Count
		}
	}
	write(final)
	return nil
}

// one-way variant for destructive actions. no optimistic removal: the
// entity leaves the visible state only after the backend confirms.
func (self *OptimisticToggleController) ConfirmedRemove(
	entityId Id,
	relation string,
	restCall func() error,
	remove func(),
) error {
	key := toggleKey{entityId: entityId, relation: relation}

	self.stateLock.Lock()
	if self.inFlight[key] {
		self.stateLock.Unlock()
		return ActionInFlight("remove already in flight")
	}
	self.inFlight[key] = true
	self.stateLock.Unlock()

	defer func() {
		self.stateLock.Lock()
		delete(self.inFlight, key)
		self.stateLock.Unlock()
	}()

	if err := restCall(); err != nil {
		return TransientNetwork("remove "+relation, err)
	}
	remove()
	return nil
}

type CounterChangeFunction = func(entityId Id, relation string)

// ui-visible toggle state per entity and relation, seeded from feed data.
// channel events never write here; these are rest-only entities.
type EntityCounterStore struct {
	stateLock sync.Mutex
	states    map[toggleKey]ToggleState

	changeCallbacks *CallbackList[CounterChangeFunction]
}

func NewEntityCounterStore() *EntityCounterStore {
	return &EntityCounterStore{
		states:          map[toggleKey]ToggleState{},
		changeCallbacks: NewCallbackList[CounterChangeFunction](),
	}
}

func (self *EntityCounterStore) AddChangeCallback(callback CounterChangeFunction) func() {
	callbackId := self.changeCallbacks.Add(callback)
	return func() {
		self.changeCallbacks.Remove(callbackId)
	}
}

func (self *EntityCounterStore) Seed(entityId Id, relation string, value bool, count int) {
	self.stateLock.Lock()
	self.states[toggleKey{entityId: entityId, relation: relation}] = ToggleState{
		Value: value,
		Count: count,
	}
	self.stateLock.Unlock()

	self.change(entityId, relation)
}

func (self *EntityCounterStore) Get(entityId Id, relation string) (ToggleState, bool) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	state, ok := self.states[toggleKey{entityId: entityId, relation: relation}]
	return state, ok
}

func (self *EntityCounterStore) set(entityId Id, relation string, state ToggleState) {
	self.stateLock.Lock()
	self.states[toggleKey{entityId: entityId, relation: relation}] = state
	self.stateLock.Unlock()

	self.change(entityId, relation)
}

func (self *EntityCounterStore) Remove(entityId Id) {
	self.stateLock.Lock()
	for key := range self.states {
		if key.entityId == entityId {
			delete(self.states, key)
		}
	}
	self.stateLock.Unlock()
}

func (self *EntityCounterStore) change(entityId Id, relation string) {
	for _, callback := range self.changeCallbacks.Get() {
		HandleError(func() {
			callback(entityId, relation)
		})
	}
}

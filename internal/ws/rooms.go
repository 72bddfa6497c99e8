package ws

import (
	"errors"
	"sync"
)

const (
	RejectInvalidID   = "invalid_id"
	RejectForbidden   = "forbidden"
	RejectUnavailable = "unavailable"
	RejectBatchLimit  = "batch_limit"
)

// MaxBatchEntities caps the ids handled from one subscription request. A
// full batch of maximum length ids fits within DefaultMaxMessageSize.
const MaxBatchEntities = 500

// BatchResult reports the outcome of a batch entity subscription.
type BatchResult struct {
	Joined   []Topic
	Rejected []Rejection
}

// Rooms tracks topic membership in both directions so that a disconnecting
// connection can be removed from every topic without scanning them all.
type Rooms struct {
	mu      sync.RWMutex
	members map[Topic]map[string]struct{}
	joined  map[string]map[Topic]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[Topic]map[string]struct{}),
		joined:  make(map[string]map[Topic]struct{}),
	}
}

func (r *Rooms) JoinDefaults(connID string, p Principal) []Topic {
	return r.JoinTopics(connID, DefaultTopics(p))
}

func (r *Rooms) JoinTopics(connID string, topics []Topic) []Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range topics {
		r.joinLocked(connID, t)
	}
	return topics
}

// Join adds connID to topic and reports whether it was not a member yet.
func (r *Rooms) Join(connID string, topic Topic) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.joinLocked(connID, topic)
}

func (r *Rooms) joinLocked(connID string, topic Topic) bool {
	if r.members[topic] == nil {
		r.members[topic] = make(map[string]struct{})
	}
	if _, ok := r.members[topic][connID]; ok {
		return false
	}
	r.members[topic][connID] = struct{}{}

	if r.joined[connID] == nil {
		r.joined[connID] = make(map[Topic]struct{})
	}
	r.joined[connID][topic] = struct{}{}
	return true
}

// JoinEntities joins connID to the entity topics of class named by rawIDs.
// Every id is handled on its own: a malformed id or one refused by allow is
// reported in the result and the rest of the batch proceeds. Ids past
// MaxBatchEntities are rejected unseen. allow may be nil.
func (r *Rooms) JoinEntities(connID string, class EntityClass, rawIDs []string, allow func(entityID string) error) BatchResult {
	var result BatchResult
	if len(rawIDs) > MaxBatchEntities {
		for _, raw := range rawIDs[MaxBatchEntities:] {
			result.Rejected = append(result.Rejected, Rejection{ID: raw, Reason: RejectBatchLimit})
		}
		rawIDs = rawIDs[:MaxBatchEntities]
	}
	if !class.Valid() {
		for _, raw := range rawIDs {
			result.Rejected = append(result.Rejected, Rejection{ID: raw, Reason: RejectInvalidID})
		}
		return result
	}

	seen := make(map[string]struct{}, len(rawIDs))
	for _, raw := range rawIDs {
		id, err := ParseEntityID(raw)
		if err != nil {
			result.Rejected = append(result.Rejected, Rejection{ID: raw, Reason: RejectInvalidID})
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if allow != nil {
			if err := allow(id); err != nil {
				reason := RejectUnavailable
				if errors.Is(err, ErrForbiddenEntity) {
					reason = RejectForbidden
				}
				result.Rejected = append(result.Rejected, Rejection{ID: id, Reason: reason})
				continue
			}
		}

		topic := EntityTopic(class, id)
		r.Join(connID, topic)
		result.Joined = append(result.Joined, topic)
	}
	return result
}

func (r *Rooms) Leave(connID string, topic Topic) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(connID, topic)
}

func (r *Rooms) leaveLocked(connID string, topic Topic) bool {
	members, ok := r.members[topic]
	if !ok {
		return false
	}
	if _, ok := members[connID]; !ok {
		return false
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.members, topic)
	}

	if topics, ok := r.joined[connID]; ok {
		delete(topics, topic)
		if len(topics) == 0 {
			delete(r.joined, connID)
		}
	}
	return true
}

// LeaveAll removes connID from every topic and returns what it left.
func (r *Rooms) LeaveAll(connID string) []Topic {
	r.mu.Lock()
	defer r.mu.Unlock()

	topics := r.joined[connID]
	left := make([]Topic, 0, len(topics))
	for topic := range topics {
		if members, ok := r.members[topic]; ok {
			delete(members, connID)
			if len(members) == 0 {
				delete(r.members, topic)
			}
		}
		left = append(left, topic)
	}
	delete(r.joined, connID)
	return left
}

func (r *Rooms) MembersOf(topic Topic) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.members[topic]
	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

func (r *Rooms) TopicsOf(connID string) []Topic {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topics := r.joined[connID]
	out := make([]Topic, 0, len(topics))
	for t := range topics {
		out = append(out, t)
	}
	return out
}

func (r *Rooms) IsMember(connID string, topic Topic) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[topic][connID]
	return ok
}

func (r *Rooms) TopicCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

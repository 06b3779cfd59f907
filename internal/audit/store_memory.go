package audit

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Store used by unit tests and local
// development. It evaluates the same predicate set the PostgreSQL store
// renders, so the query builder is exercised without a database.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*Event

	// orgs answers the peer side of OwnOrPeer predicates. May be nil, in
	// which case only the own half of the predicate can match.
	orgs OrgDirectory
}

// NewMemoryStore creates an empty in-memory store. orgs may be nil.
func NewMemoryStore(orgs OrgDirectory) *MemoryStore {
	return &MemoryStore{orgs: orgs}
}

// Append stores a copy of the event.
func (s *MemoryStore) Append(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *event
	s.events = append(s.events, &copied)
	return nil
}

// List evaluates the query's predicates over all events, newest first.
func (s *MemoryStore) List(ctx context.Context, q Query) ([]*Event, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Event
	for _, event := range s.events {
		ok, err := s.matches(ctx, event, q.Predicates)
		if err != nil {
			return nil, 0, err
		}
		if ok {
			matched = append(matched, event)
		}
	}

	// Newest first; later insertion wins ties to mirror the monotonic
	// created_at ordering of the relational store.
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	offset := q.Offset()
	if offset >= total {
		return []*Event{}, total, nil
	}
	end := offset + q.PageSize
	if end > total {
		end = total
	}

	page := make([]*Event, 0, end-offset)
	for _, event := range matched[offset:end] {
		copied := *event
		page = append(page, &copied)
	}
	return page, total, nil
}

// Clear drops all stored events.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

func (s *MemoryStore) matches(ctx context.Context, event *Event, predicates []Predicate) (bool, error) {
	for _, p := range predicates {
		switch p := p.(type) {
		case MatchNone:
			return false, nil
		case Eq:
			if columnValue(event, p.Column) != p.Value {
				return false, nil
			}
		case Substring:
			haystack := strings.ToLower(columnValue(event, p.Column))
			if !strings.Contains(haystack, strings.ToLower(p.Value)) {
				return false, nil
			}
		case TimeRange:
			if p.From != nil && event.CreatedAt.Before(*p.From) {
				return false, nil
			}
			if p.To != nil && event.CreatedAt.After(*p.To) {
				return false, nil
			}
		case DetailsRange:
			value, ok := detailsValue(event, p.Field)
			if !ok {
				return false, nil
			}
			if p.Min != nil && value < *p.Min {
				return false, nil
			}
			if p.Max != nil && value > *p.Max {
				return false, nil
			}
		case OwnOrPeer:
			ok, err := s.matchesOwnOrPeer(ctx, event, p)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

func (s *MemoryStore) matchesOwnOrPeer(ctx context.Context, event *Event, p OwnOrPeer) (bool, error) {
	if event.ActorID == p.ActorID {
		return true, nil
	}
	if s.orgs == nil {
		return false, nil
	}
	actorOrgs, err := s.orgs.Assignments(ctx, event.ActorID)
	if err != nil {
		return false, err
	}
	return overlaps(actorOrgs.Divisions, p.Divisions) ||
		overlaps(actorOrgs.Departments, p.Departments) ||
		overlaps(actorOrgs.Locations, p.Locations), nil
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func columnValue(event *Event, column string) string {
	switch column {
	case ColEntityKind:
		return event.EntityKind
	case ColEntityID:
		return event.EntityID
	case ColAction:
		return event.Action
	case ColSummary:
		return event.Summary
	case ColEventType:
		return event.EventType
	case ColOutcome:
		return string(event.Outcome)
	case ColTargetKind:
		return event.TargetKind
	case ColTargetID:
		return event.TargetID
	case ColSessionID:
		return event.SessionID
	case ColActorID:
		return event.ActorID
	case ColActorType:
		return string(event.ActorType)
	case ColCorrelationID:
		return event.CorrelationID
	case ColPackName:
		return event.PackName
	case ColMethod:
		return event.Method
	default:
		return ""
	}
}

func detailsValue(event *Event, field string) (int64, bool) {
	if event.Details == nil {
		return 0, false
	}
	switch field {
	case DetailStatus:
		return int64(event.Details.Status), true
	case DetailDuration:
		if event.Details.DurationMs == 0 {
			return 0, false
		}
		return event.Details.DurationMs, true
	default:
		return 0, false
	}
}

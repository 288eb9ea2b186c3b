package feed

import (
	"context"
	"slices"
	"sync"

	"github.com/erazemk/najdeno/internal/model"
)

// View is the recomputed result published to State subscribers.
type View struct {
	Result
	Filter Filter
	Err    error
}

// State holds a working item collection and the active filter. Every
// mutation recomputes the view and hands it to subscribers.
type State struct {
	mu     sync.Mutex
	items  []model.Item
	filter Filter
	subs   map[int]chan View
	nextID int
}

// NewState returns an empty State with the default filter.
func NewState() *State {
	return &State{
		filter: DefaultFilter(),
		subs:   make(map[int]chan View),
	}
}

// SetItems replaces the collection with a fetched snapshot.
func (s *State) SetItems(items []model.Item) {
	s.mu.Lock()
	s.items = slices.Clone(items)
	s.notifyLocked()
	s.mu.Unlock()
}

// AddItem prepends a newly created item. An item whose ID is already in
// the collection is replaced where it stands.
func (s *State) AddItem(item model.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.items {
		if s.items[i].ID == item.ID {
			s.items[i] = item
			s.notifyLocked()
			return
		}
	}
	s.items = append([]model.Item{item}, s.items...)
	s.notifyLocked()
}

// SetFilter replaces the active filter.
func (s *State) SetFilter(f Filter) {
	s.mu.Lock()
	s.filter = f.Normalized()
	s.notifyLocked()
	s.mu.Unlock()
}

// UpdateFilter applies a partial change to the active filter.
func (s *State) UpdateFilter(change func(*Filter)) {
	s.mu.Lock()
	f := s.filter
	change(&f)
	s.filter = f.Normalized()
	s.notifyLocked()
	s.mu.Unlock()
}

// ResetFilter restores the default filter.
func (s *State) ResetFilter() {
	s.SetFilter(DefaultFilter())
}

// Items returns a copy of the working collection.
func (s *State) Items() []model.Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// Filter returns the active filter.
func (s *State) Filter() Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// View recomputes the visible list.
func (s *State) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Subscribe returns a channel receiving the recomputed view after every
// change. Only the latest view is kept for a slow reader. The cancel func
// closes the channel.
func (s *State) Subscribe() (<-chan View, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan View, 1)
	s.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}
	return ch, cancel
}

// Consume merges items arriving on in until it is closed or ctx ends.
func (s *State) Consume(ctx context.Context, in <-chan model.Item) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item, ok := <-in:
			if !ok {
				return nil
			}
			s.AddItem(item)
		}
	}
}

func (s *State) viewLocked() View {
	res, err := Compute(s.items, s.filter)
	return View{Result: res, Filter: s.filter, Err: err}
}

func (s *State) notifyLocked() {
	if len(s.subs) == 0 {
		return
	}
	v := s.viewLocked()
	for _, ch := range s.subs {
		// Drop a stale unread view so the newest one always fits.
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

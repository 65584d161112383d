package adapter

import (
	"errors"
	"reflect"
	"sync"
)

// Registry maps protocol and swapper ids to plugin instances. It is filled
// during setup and read concurrently by compositions; entries are only
// published fully constructed, under the write lock.
type Registry struct {
	mu            sync.RWMutex
	protocols     map[ProtocolID]Protocol
	protocolOrder []ProtocolID
	swappers      map[SwapperID]Swapper
	swapperOrder  []SwapperID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		protocols: make(map[ProtocolID]Protocol),
		swappers:  make(map[SwapperID]Swapper),
	}
}

// RegisterProtocol adds p under p.ID(). Registering the same instance again
// is a no-op; a different instance under a taken id fails with
// ErrDuplicateRegistration.
func (r *Registry) RegisterProtocol(p Protocol) error {
	if isNil(p) {
		return errors.New("adapter: cannot register nil protocol")
	}
	id := p.ID()
	if id == "" {
		return errors.New("adapter: protocol id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.protocols[id]; ok {
		if sameInstance(existing, p) {
			return nil
		}
		return NewError(ErrDuplicateRegistration, "registry.register_protocol").WithAdapter(string(id))
	}
	r.protocols[id] = p
	r.protocolOrder = append(r.protocolOrder, id)
	return nil
}

// RegisterSwapper has the same contract as RegisterProtocol for swappers.
func (r *Registry) RegisterSwapper(s Swapper) error {
	if isNil(s) {
		return errors.New("adapter: cannot register nil swapper")
	}
	id := s.ID()
	if id == "" {
		return errors.New("adapter: swapper id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.swappers[id]; ok {
		if sameInstance(existing, s) {
			return nil
		}
		return NewError(ErrDuplicateRegistration, "registry.register_swapper").WithAdapter(string(id))
	}
	r.swappers[id] = s
	r.swapperOrder = append(r.swapperOrder, id)
	return nil
}

// MustRegisterProtocol panics if registration fails.
func (r *Registry) MustRegisterProtocol(ps ...Protocol) {
	for _, p := range ps {
		if err := r.RegisterProtocol(p); err != nil {
			panic(err)
		}
	}
}

// MustRegisterSwapper panics if registration fails.
func (r *Registry) MustRegisterSwapper(ss ...Swapper) {
	for _, s := range ss {
		if err := r.RegisterSwapper(s); err != nil {
			panic(err)
		}
	}
}

// Protocol returns the plugin registered under id or fails with ErrUnknownAdapter.
func (r *Registry) Protocol(id ProtocolID) (Protocol, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.protocols[id]
	if !ok {
		return nil, NewError(ErrUnknownAdapter, "registry.protocol").WithAdapter(string(id))
	}
	return p, nil
}

// Swapper returns the plugin registered under id or fails with ErrUnknownAdapter.
func (r *Registry) Swapper(id SwapperID) (Swapper, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.swappers[id]
	if !ok {
		return nil, NewError(ErrUnknownAdapter, "registry.swapper").WithAdapter(string(id))
	}
	return s, nil
}

// Protocols returns all protocol plugins in registration order.
func (r *Registry) Protocols() []Protocol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Protocol, 0, len(r.protocolOrder))
	for _, id := range r.protocolOrder {
		out = append(out, r.protocols[id])
	}
	return out
}

// Swappers returns all swapper plugins in registration order.
func (r *Registry) Swappers() []Swapper {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Swapper, 0, len(r.swapperOrder))
	for _, id := range r.swapperOrder {
		out = append(out, r.swappers[id])
	}
	return out
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// sameInstance compares plugin identity without panicking on
// non-comparable dynamic types.
func sameInstance(a, b any) bool {
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Kind() == reflect.Pointer {
		return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
	}
	if !ta.Comparable() {
		return false
	}
	return a == b
}

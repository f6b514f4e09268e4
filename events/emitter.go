// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler processes a single event. Handlers run synchronously on the
// emitting goroutine and must not block for long or re-enter the emitter.
type Handler func(*Event)

// Filter decides whether an event should be delivered to a handler.
type Filter func(*Event) bool

// defaultBufferSize is the ring buffer capacity used when no
// WithBufferSize option is supplied.
const defaultBufferSize = 1000

// subscription pairs a handler with the filter that gates it. A plain
// type-based Subscribe is implemented as a Filter over the requested types.
type subscription struct {
	id      string
	handler Handler
	filter  Filter
}

// Emitter fans agent events out to subscribed handlers and keeps a bounded
// in-memory ring buffer of recently emitted events for later inspection.
//
// Thread Safety: Emitter is safe for concurrent use.
type Emitter struct {
	mu sync.Mutex

	sessionID string
	step      int

	subs []subscription

	bufferSize int
	buffer     []Event
}

// EmitterOption configures an Emitter at construction time.
type EmitterOption func(*Emitter)

// WithSessionID sets the session ID attached to every emitted event until
// changed with SetSessionID.
func WithSessionID(sessionID string) EmitterOption {
	return func(e *Emitter) {
		e.sessionID = sessionID
	}
}

// WithBufferSize overrides the default ring buffer capacity.
func WithBufferSize(size int) EmitterOption {
	return func(e *Emitter) {
		e.bufferSize = size
	}
}

// NewEmitter creates an Emitter ready to accept subscriptions and emit
// events.
func NewEmitter(opts ...EmitterOption) *Emitter {
	e := &Emitter{
		bufferSize: defaultBufferSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.buffer = make([]Event, 0, e.bufferSize)
	return e
}

// Subscribe registers handler to receive every emitted event. If one or
// more types are given, only events of those types are delivered. Returns a
// subscription ID usable with Unsubscribe.
func (e *Emitter) Subscribe(handler Handler, types ...Type) string {
	var filter Filter
	if len(types) > 0 {
		filter = TypeFilter(types...)
	}
	return e.SubscribeWithFilter(handler, filter)
}

// SubscribeWithFilter registers handler to receive events for which filter
// returns true. A nil filter matches every event.
func (e *Emitter) SubscribeWithFilter(handler Handler, filter Filter) string {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := uuid.NewString()
	e.subs = append(e.subs, subscription{id: id, handler: handler, filter: filter})
	return id
}

// Unsubscribe removes the subscription identified by id. Returns false if
// no such subscription exists (including one already removed).
func (e *Emitter) Unsubscribe(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, sub := range e.subs {
		if sub.id == id {
			e.subs = append(e.subs[:i], e.subs[i+1:]...)
			return true
		}
	}
	return false
}

// SubscriptionCount returns the number of active subscriptions.
func (e *Emitter) SubscriptionCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// SetSessionID changes the session ID attached to subsequently emitted
// events.
func (e *Emitter) SetSessionID(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessionID = sessionID
}

// SetStep sets the current step counter attached to subsequently emitted
// events.
func (e *Emitter) SetStep(step int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.step = step
}

// IncrementStep advances the step counter by one and returns the new value.
func (e *Emitter) IncrementStep() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.step++
	return e.step
}

// Emit builds an Event of type t carrying data and delivers it to every
// matching subscription, then appends it to the ring buffer.
func (e *Emitter) Emit(t Type, data any) {
	e.EmitWithMetadata(t, data, nil)
}

// EmitWithMetadata is Emit with an explicit EventMetadata attached to the
// resulting Event.
func (e *Emitter) EmitWithMetadata(t Type, data any, meta *EventMetadata) {
	e.mu.Lock()
	ev := Event{
		ID:        uuid.NewString(),
		Type:      t,
		SessionID: e.sessionID,
		Timestamp: time.Now(),
		Step:      e.step,
		Data:      data,
		Metadata:  meta,
	}
	e.appendToBuffer(ev)
	subs := make([]subscription, len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	for _, sub := range subs {
		if sub.filter != nil && !sub.filter(&ev) {
			continue
		}
		sub.handler(&ev)
	}
}

// appendToBuffer appends ev to the ring buffer, evicting the oldest entry
// once bufferSize is exceeded. Caller must hold e.mu.
func (e *Emitter) appendToBuffer(ev Event) {
	if e.bufferSize <= 0 {
		return
	}
	e.buffer = append(e.buffer, ev)
	if excess := len(e.buffer) - e.bufferSize; excess > 0 {
		e.buffer = e.buffer[excess:]
	}
}

// GetBuffer returns a copy of the currently buffered events, oldest first.
func (e *Emitter) GetBuffer() []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Event, len(e.buffer))
	copy(out, e.buffer)
	return out
}

// GetBufferSince returns buffered events with a timestamp strictly after t.
func (e *Emitter) GetBufferSince(t time.Time) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Event
	for _, ev := range e.buffer {
		if ev.Timestamp.After(t) {
			out = append(out, ev)
		}
	}
	return out
}

// GetBufferByType returns buffered events of the given type, oldest first.
func (e *Emitter) GetBufferByType(t Type) []Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Event
	for _, ev := range e.buffer {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// ClearBuffer empties the ring buffer without touching subscriptions.
func (e *Emitter) ClearBuffer() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.buffer = e.buffer[:0]
}

// Reset removes all subscriptions and clears the buffer, returning the
// Emitter to its post-construction state (session ID and step are left
// untouched).
func (e *Emitter) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = nil
	e.buffer = e.buffer[:0]
}

// MockEmitter records every emitted event for assertions in tests, without
// any subscription or buffering machinery.
//
// Thread Safety: MockEmitter is safe for concurrent use.
type MockEmitter struct {
	mu     sync.Mutex
	events []Event
}

// NewMockEmitter creates an empty MockEmitter.
func NewMockEmitter() *MockEmitter {
	return &MockEmitter{}
}

// Emit records an event of type t carrying data.
func (m *MockEmitter) Emit(t Type, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
	})
}

// EventCount returns the number of recorded events.
func (m *MockEmitter) EventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// GetEventsByType returns recorded events of the given type, in emission
// order.
func (m *MockEmitter) GetEventsByType(t Type) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Event
	for _, ev := range m.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Clear discards all recorded events.
func (m *MockEmitter) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

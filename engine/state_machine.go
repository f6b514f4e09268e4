// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"fmt"
	"sync"
)

// StateMachine validates transitions in the per-turn state machine:
//
//	IDLE -> APPEND_USER                   : a new user turn starts
//	APPEND_USER -> STREAM
//	STREAM -> CANCELLED                  : cancellation fires mid-stream
//	STREAM -> PARSE_CONTENT               : stream completed
//	PARSE_CONTENT -> APPEND_ASSISTANT     : parseError, raw content preserved
//	PARSE_CONTENT -> MERGE_CALLS          : parse succeeded
//	MERGE_CALLS -> FILTER
//	FILTER -> APPEND_ASSISTANT            : all-errors-and-no-content path also lands here
//	APPEND_ASSISTANT -> STREAM             : parseError/all-errors remediation loop
//	APPEND_ASSISTANT -> SPLIT             : valid calls (or content) to act on
//	SPLIT -> EXECUTE
//	EXECUTE -> CONFIRM
//	CONFIRM -> APPEND_TOOL_RESULTS
//	APPEND_TOOL_RESULTS -> STREAM          : tool results appended this iteration
//	APPEND_TOOL_RESULTS -> IDLE            : content produced, nothing left to do
//	APPEND_TOOL_RESULTS -> APPEND_USER     : nudge-on-empty
//	CANCELLED -> IDLE
//
// Thread Safety: StateMachine is safe for concurrent use.
type StateMachine struct {
	mu          sync.RWMutex
	transitions map[TurnState]map[TurnState]bool
}

// NewStateMachine builds the turn state machine's transition graph.
func NewStateMachine() *StateMachine {
	sm := &StateMachine{transitions: make(map[TurnState]map[TurnState]bool)}

	allStates := []TurnState{
		StateAppendUser, StateStream, StateParseContent, StateMergeCalls,
		StateFilter, StateAppendAssistant, StateSplit, StateExecute,
		StateConfirm, StateAppendToolResults, StateIdle, StateCancelled,
	}
	for _, s := range allStates {
		sm.transitions[s] = make(map[TurnState]bool)
	}

	sm.addTransition(StateIdle, StateAppendUser)
	sm.addTransition(StateAppendUser, StateStream)

	sm.addTransition(StateStream, StateCancelled)
	sm.addTransition(StateStream, StateParseContent)

	sm.addTransition(StateParseContent, StateAppendAssistant)
	sm.addTransition(StateParseContent, StateMergeCalls)

	sm.addTransition(StateMergeCalls, StateFilter)

	sm.addTransition(StateFilter, StateAppendAssistant)

	sm.addTransition(StateAppendAssistant, StateStream)
	sm.addTransition(StateAppendAssistant, StateSplit)

	sm.addTransition(StateSplit, StateExecute)

	sm.addTransition(StateExecute, StateConfirm)
	sm.addTransition(StateExecute, StateAppendToolResults)

	sm.addTransition(StateConfirm, StateAppendToolResults)
	sm.addTransition(StateConfirm, StateCancelled)

	sm.addTransition(StateAppendToolResults, StateStream)
	sm.addTransition(StateAppendToolResults, StateIdle)
	sm.addTransition(StateAppendToolResults, StateAppendUser)

	sm.addTransition(StateCancelled, StateIdle)

	// Any in-flight state can fall straight to CANCELLED; the turn loop
	// checks the cancellation token at every suspension point, not just
	// during STREAM.
	for _, s := range allStates {
		if s == StateIdle || s == StateCancelled {
			continue
		}
		sm.addTransition(s, StateCancelled)
	}

	return sm
}

func (sm *StateMachine) addTransition(from, to TurnState) {
	sm.transitions[from][to] = true
}

// CanTransition reports whether from -> to is a valid edge.
func (sm *StateMachine) CanTransition(from, to TurnState) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	if toMap, ok := sm.transitions[from]; ok {
		return toMap[to]
	}
	return false
}

// Transition moves session into the target state, or returns
// ErrInvalidTransition.
func (sm *StateMachine) Transition(session *Session, to TurnState) error {
	from := session.State()
	if !sm.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	session.SetState(to)
	return nil
}

// ValidTransitionsFrom returns every valid target state from a given state.
func (sm *StateMachine) ValidTransitionsFrom(from TurnState) []TurnState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	var result []TurnState
	for state, ok := range sm.transitions[from] {
		if ok {
			result = append(result, state)
		}
	}
	return result
}

// DefaultStateMachine is the shared state machine instance used by Engine.
var DefaultStateMachine = NewStateMachine()

// Package models provides the ledger's entities and their lifecycle rules.
package models

import (
	"fmt"
	"strings"
)

// StateTransition defines a valid state transition.
type StateTransition[S ~string] struct {
	From        S
	To          S
	Condition   string
	Description string
}

// TradeTransitions are the only legal trade moves. CLOSED is terminal.
var TradeTransitions = []StateTransition[TradeStatus]{
	{TradeOpen, TradeClosed, string(CloseBTC), "Bought back before expiration"},
	{TradeOpen, TradeClosed, string(CloseExpiration), "Expired worthless"},
	{TradeOpen, TradeClosed, string(CloseAssignment), "Assigned by the counterparty"},
}

// PositionTransitions are the legal position moves. CLOSED is terminal.
var PositionTransitions = []StateTransition[PositionStatus]{
	{PositionOpen, PositionClosed, "called_away", "Last shares delivered on call assignment"},
	{PositionOpen, PositionClosed, "sold", "Last shares sold manually"},
}

// WheelTransitions are the legal wheel phase moves.
var WheelTransitions = []StateTransition[WheelPhase]{
	{PhaseCSP, PhaseHolding, "csp_assigned", "Put assigned, shares acquired"},
	{PhaseCSP, PhaseCC, "cc_opened", "Call written against shares held outside the wheel"},
	{PhaseHolding, PhaseCC, "cc_opened", "Covered call written against held shares"},
	{PhaseHolding, PhaseCSP, "position_sold", "Shares sold manually, cycle complete"},
	{PhaseCC, PhaseHolding, "cc_closed", "Call expired or bought back, shares still held"},
	{PhaseCC, PhaseHolding, "cc_assigned", "Part of the shares called away"},
	{PhaseCC, PhaseHolding, "cc_removed", "Open call deleted"},
	{PhaseCC, PhaseCSP, "cc_closed", "Call closed with no shares left to cover"},
	{PhaseCC, PhaseCSP, "cc_assigned", "Shares called away, cycle complete"},
	{PhaseCC, PhaseCSP, "cc_removed", "Open call deleted with no shares held"},
}

// StateMachine validates and records transitions over a fixed table.
type StateMachine[S ~string] struct {
	transitions   []StateTransition[S]
	currentState  S
	previousState S
	history       []S
}

// NewStateMachine creates a state machine positioned at initial.
func NewStateMachine[S ~string](initial S, transitions []StateTransition[S]) *StateMachine[S] {
	return &StateMachine[S]{
		transitions:   transitions,
		currentState:  initial,
		previousState: initial,
	}
}

// GetCurrentState returns the current state
func (sm *StateMachine[S]) GetCurrentState() S {
	return sm.currentState
}

// GetPreviousState returns the previous state
func (sm *StateMachine[S]) GetPreviousState() S {
	return sm.previousState
}

// History returns the states entered, oldest first.
func (sm *StateMachine[S]) History() []S {
	out := make([]S, len(sm.history))
	copy(out, sm.history)
	return out
}

// IsValidTransition checks if a transition is valid
func (sm *StateMachine[S]) IsValidTransition(to S, condition string) error {
	for _, transition := range sm.transitions {
		if transition.From != sm.currentState || transition.To != to {
			continue
		}
		if conditionMatches(transition.Condition, condition) {
			return nil
		}
	}
	return fmt.Errorf("invalid transition from %s to %s with condition '%s'",
		sm.currentState, to, condition)
}

// conditionMatches checks if the condition requirements are satisfied
func conditionMatches(transitionCondition, providedCondition string) bool {
	// No condition required
	if transitionCondition == "" {
		return true
	}
	return providedCondition == transitionCondition
}

// Transition moves to a new state
func (sm *StateMachine[S]) Transition(to S, condition string) error {
	if err := sm.IsValidTransition(to, condition); err != nil {
		return err
	}
	sm.previousState = sm.currentState
	sm.currentState = to
	sm.history = append(sm.history, to)
	return nil
}

// IsTerminal reports whether no transition leaves the current state.
func (sm *StateMachine[S]) IsTerminal() bool {
	for _, transition := range sm.transitions {
		if transition.From == sm.currentState {
			return false
		}
	}
	return true
}

func upper(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

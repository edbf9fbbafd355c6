package domain

import "fmt"

// ActionKind is the fixed set of primitive actions the oracle may request.
type ActionKind string

const (
	ActionClick    ActionKind = "click"
	ActionType     ActionKind = "type"
	ActionPressKey ActionKind = "press_key"
	ActionWait     ActionKind = "wait"
	ActionDone     ActionKind = "done"
)

// Action is the tagged variant over the action-kind set. Each concrete type
// carries only the fields relevant to its kind; the free-form parameter map
// from the oracle is decoded into one of these at the boundary.
type Action interface {
	Kind() ActionKind
	Params() map[string]any
}

// ClickAction clicks at absolute screen coordinates.
type ClickAction struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (a ClickAction) Kind() ActionKind { return ActionClick }
func (a ClickAction) Params() map[string]any {
	return map[string]any{"x": a.X, "y": a.Y}
}

// TypeAction types text, optionally clicking a target first.
type TypeAction struct {
	Text string `json:"text"`
	X    *int   `json:"x,omitempty"`
	Y    *int   `json:"y,omitempty"`
}

func (a TypeAction) Kind() ActionKind { return ActionType }
func (a TypeAction) Params() map[string]any {
	p := map[string]any{"text": a.Text}
	if a.X != nil && a.Y != nil {
		p["x"], p["y"] = *a.X, *a.Y
	}
	return p
}

// PressKeyAction presses a single key or a "+"-joined combination.
type PressKeyAction struct {
	Key string `json:"key"`
}

func (a PressKeyAction) Kind() ActionKind { return ActionPressKey }
func (a PressKeyAction) Params() map[string]any {
	return map[string]any{"key": a.Key}
}

// WaitAction pauses for the given number of seconds.
type WaitAction struct {
	Seconds float64 `json:"seconds"`
}

func (a WaitAction) Kind() ActionKind { return ActionWait }
func (a WaitAction) Params() map[string]any {
	return map[string]any{"seconds": a.Seconds}
}

// DoneAction signals task completion with a stated reason.
type DoneAction struct {
	Reason string `json:"reason"`
}

func (a DoneAction) Kind() ActionKind { return ActionDone }
func (a DoneAction) Params() map[string]any {
	return map[string]any{"reason": a.Reason}
}

// Decision is a single oracle verdict: what to do next and whether the task
// is finished.
type Decision struct {
	Rationale string
	Action    Action
	Done      bool
}

// DecodeAction converts a kind plus a free-form parameter map into a typed
// Action. Unknown kinds and malformed parameters are rejected here so the
// rest of the core never sees an untyped payload.
func DecodeAction(kind ActionKind, params map[string]any) (Action, error) {
	switch kind {
	case ActionClick:
		x, okX := asInt(params["x"])
		y, okY := asInt(params["y"])
		if !okX || !okY {
			return nil, fmt.Errorf("click action requires integer x and y, got %v", params)
		}
		return ClickAction{X: x, Y: y}, nil

	case ActionType:
		text, ok := params["text"].(string)
		if !ok {
			return nil, fmt.Errorf("type action requires string 'text', got %v", params)
		}
		a := TypeAction{Text: text}
		if x, okX := asInt(params["x"]); okX {
			if y, okY := asInt(params["y"]); okY {
				a.X, a.Y = &x, &y
			}
		}
		return a, nil

	case ActionPressKey:
		key, ok := params["key"].(string)
		if !ok || key == "" {
			return nil, fmt.Errorf("press_key action requires non-empty 'key', got %v", params)
		}
		return PressKeyAction{Key: key}, nil

	case ActionWait:
		secs, ok := asFloat(params["seconds"])
		if !ok || secs < 0 {
			return nil, fmt.Errorf("wait action requires non-negative 'seconds', got %v", params)
		}
		return WaitAction{Seconds: secs}, nil

	case ActionDone:
		reason, _ := params["reason"].(string)
		if reason == "" {
			reason = "task completed"
		}
		return DoneAction{Reason: reason}, nil

	default:
		return nil, fmt.Errorf("unknown action kind %q", kind)
	}
}

// asInt tolerates the numeric types JSON decoding can produce.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

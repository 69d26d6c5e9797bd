package domain

import (
	"encoding/json"
	"reflect"
)

// CallDiff represents the changes between two snapshots of a call.
// It is serialized to JSON and pushed to call watchers as a partial update.
type CallDiff struct {
	// CallID is always present to identify the target.
	CallID string `json:"call_id"`

	Step *Step `json:"step,omitempty"`

	// Fields contains only changed, added or cleared context fields, keyed by
	// their JSON name. A cleared field is present with a nil value.
	Fields map[string]any `json:"fields,omitempty"`

	// Attempts holds the retry counters that moved.
	Attempts map[Step]int `json:"attempts,omitempty"`

	History *HistoryDelta `json:"history,omitempty"`

	Terminated *bool `json:"terminated,omitempty"`
}

// HistoryDelta represents steps appended to the call history.
type HistoryDelta struct {
	Appended []Step `json:"appended"`
}

// structural fields are reported through dedicated diff members.
var structural = map[string]bool{
	"call_id":        true,
	"step":           true,
	"history":        true,
	"attempt_counts": true,
}

// Diff calculates the difference between two snapshots of the same call.
// If old is nil, it returns a diff representing the entire new snapshot.
// It returns nil when nothing changed.
func Diff(old, new *SessionContext) *CallDiff {
	if new == nil {
		return nil
	}

	diff := &CallDiff{CallID: new.CallID}

	if old == nil || old.Step != new.Step {
		step := new.Step
		diff.Step = &step
	}
	if old == nil {
		if new.Terminated() {
			t := true
			diff.Terminated = &t
		}
	} else if old.Terminated() != new.Terminated() {
		t := new.Terminated()
		diff.Terminated = &t
	}

	diff.Fields = diffFields(old, new)
	diff.Attempts = diffAttempts(old, new)
	diff.History = diffHistory(old, new)

	if diff.IsEmpty() {
		return nil
	}
	return diff
}

func fieldMap(c *SessionContext) map[string]any {
	out := make(map[string]any)
	if c == nil {
		return out
	}
	data, err := json.Marshal(c)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(data, &out)
	for k := range structural {
		delete(out, k)
	}
	return out
}

func diffFields(old, new *SessionContext) map[string]any {
	before, after := fieldMap(old), fieldMap(new)
	delta := make(map[string]any)

	for k, v := range after {
		if prev, ok := before[k]; !ok || !reflect.DeepEqual(prev, v) {
			delta[k] = v
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			delta[k] = nil
		}
	}

	if len(delta) == 0 {
		return nil
	}
	return delta
}

func diffAttempts(old, new *SessionContext) map[Step]int {
	delta := make(map[Step]int)
	for s, n := range new.AttemptCounts {
		if old == nil || old.AttemptCounts[s] != n {
			delta[s] = n
		}
	}
	if len(delta) == 0 {
		return nil
	}
	return delta
}

// diffHistory relies on the history being append-only.
func diffHistory(old, new *SessionContext) *HistoryDelta {
	if len(new.History) == 0 {
		return nil
	}
	if old == nil {
		return &HistoryDelta{Appended: append([]Step(nil), new.History...)}
	}
	if len(new.History) > len(old.History) {
		return &HistoryDelta{Appended: append([]Step(nil), new.History[len(old.History):]...)}
	}
	return nil
}

// IsEmpty checks if the diff contains any actionable changes.
func (d *CallDiff) IsEmpty() bool {
	return d.Step == nil &&
		d.Terminated == nil &&
		len(d.Fields) == 0 &&
		len(d.Attempts) == 0 &&
		d.History == nil
}

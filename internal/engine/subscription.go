package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/actionbus/internal/ir"
)

// subscriptionTable holds subscriptions (conditional edges) and triggers
// (unconditional edges) in registration order.
type subscriptionTable struct {
	subscriptions []Subscription
	triggers      []Trigger
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{}
}

// AddSubscription adds s. Duplicate keys are rejected.
func (t *subscriptionTable) AddSubscription(s Subscription) error {
	if t.SubscriptionExists(s) {
		return &DefinitionError{
			Code:     ErrCodeSubscriptionAlreadyDefined,
			ActionID: s.ActionID,
			Subject:  s.SubjectID,
			Message:  fmt.Sprintf("subscription %s is already defined", s.Key()),
		}
	}
	t.subscriptions = append(t.subscriptions, s)
	return nil
}

// SubscriptionExists reports whether a subscription with s's key exists.
func (t *subscriptionTable) SubscriptionExists(s Subscription) bool {
	return slices.ContainsFunc(t.subscriptions, func(o Subscription) bool { return o.Key() == s.Key() })
}

// RemoveSubscription deletes the subscription with s's key.
func (t *subscriptionTable) RemoveSubscription(s Subscription) bool {
	n := len(t.subscriptions)
	t.subscriptions = slices.DeleteFunc(t.subscriptions, func(o Subscription) bool { return o.Key() == s.Key() })
	return len(t.subscriptions) != n
}

// AddTrigger adds tr. Duplicate keys are rejected.
func (t *subscriptionTable) AddTrigger(tr Trigger) error {
	if t.TriggerExists(tr) {
		return &DefinitionError{
			Code:     ErrCodeTriggerAlreadyDefined,
			ActionID: tr.ActionID,
			Subject:  tr.SubjectID,
			Message:  fmt.Sprintf("trigger %s is already defined", tr.Key()),
		}
	}
	t.triggers = append(t.triggers, tr)
	return nil
}

// TriggerExists reports whether a trigger with tr's key exists.
func (t *subscriptionTable) TriggerExists(tr Trigger) bool {
	return slices.ContainsFunc(t.triggers, func(o Trigger) bool { return o.Key() == tr.Key() })
}

// RemoveTrigger deletes the trigger with tr's key.
func (t *subscriptionTable) RemoveTrigger(tr Trigger) bool {
	n := len(t.triggers)
	t.triggers = slices.DeleteFunc(t.triggers, func(o Trigger) bool { return o.Key() == tr.Key() })
	return len(t.triggers) != n
}

// RemoveByAction deletes every subscription and trigger naming actionID
// on either side.
func (t *subscriptionTable) RemoveByAction(actionID string) {
	t.subscriptions = slices.DeleteFunc(t.subscriptions, func(s Subscription) bool {
		return s.SubjectID == actionID || s.ActionID == actionID
	})
	t.triggers = slices.DeleteFunc(t.triggers, func(tr Trigger) bool {
		return tr.SubjectID == actionID || tr.ActionID == actionID
	})
}

// Resolve returns the action ids to request after subjectID completed
// with status: matching subscriptions first, then triggers, each in
// registration order, without duplicates.
func (t *subscriptionTable) Resolve(subjectID string, status ir.Status) []string {
	var out []string
	add := func(id string) {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	for _, s := range t.subscriptions {
		if s.SubjectID == subjectID && s.Status == status {
			add(s.ActionID)
		}
	}
	for _, tr := range t.triggers {
		if tr.SubjectID == subjectID {
			add(tr.ActionID)
		}
	}
	return out
}

// Subscriptions returns a copy of the subscriptions.
func (t *subscriptionTable) Subscriptions() []Subscription {
	return slices.Clone(t.subscriptions)
}

// Triggers returns a copy of the triggers.
func (t *subscriptionTable) Triggers() []Trigger {
	return slices.Clone(t.triggers)
}

package tcengine

import "github.com/p13marc/netimpaird/internal/netem"

// action names one of the five things ApplyTc can do to reach the desired
// configuration from the currently observed one.
type action string

const (
	// actionNoop: desired state already matches observed state (after
	// desugaring); no netlink call is made.
	actionNoop action = "noop"

	// actionAdd: no qdisc is present yet; RTM_NEWQDISC without
	// NLM_F_REPLACE.
	actionAdd action = "add"

	// actionReplace: a qdisc is present and every feature it carries is
	// also present in the desired config (features may only be added or
	// have their values changed, never removed) — RTM_NEWQDISC with
	// NLM_F_REPLACE is safe because replace only overwrites the attributes
	// the request sets, and every attribute the kernel already has is also
	// being set here.
	actionReplace action = "replace"

	// actionDeleteThenAdd: the desired config drops a feature the observed
	// qdisc has, but still wants netem present with different features. A
	// bare replace cannot express "unset this attribute" — TC_NETEM's kernel
	// handler only overwrites attributes present in the netlink message, so
	// a feature omitted from the new request would silently survive under
	// replace. The qdisc must be deleted and a fresh one added instead.
	actionDeleteThenAdd action = "delete_then_add"

	// actionDelete: the desired config is empty — "no impairment" — so the
	// root qdisc is removed outright with no re-add (spec.md §3, §4.7's
	// `netem(X) | empty | del_qdisc(root)` row).
	actionDelete action = "delete"
)

// decide implements the central decision table (spec.md §4.7, invariant P2):
// given what is currently observed on the interface (current) and what is
// desired (desired), choose the netlink operation that reaches desired
// without leaking any attribute current set that desired does not carry.
//
// present indicates whether a netem qdisc is currently attached at all; it
// is passed separately from current because a present-but-featureless netem
// qdisc (all zero fields) is representationally identical to "no qdisc" in
// configFromNetem's reverse mapping, and the two must not be conflated: it
// decides noop vs delete when desired is empty, and add vs replace otherwise.
func decide(current, desired netem.Config, present bool) action {
	if desired.IsEmpty() {
		if !present {
			return actionNoop
		}
		return actionDelete
	}

	if !present {
		return actionAdd
	}

	if current.EffectivelyEqual(desired) {
		return actionNoop
	}

	if removesAnyFeature(current, desired) {
		return actionDeleteThenAdd
	}

	return actionReplace
}

// removesAnyFeature reports whether desired lacks a feature current.
// has — i.e. whether reaching desired from current requires unsetting a
// netem attribute, which NLM_F_REPLACE cannot do.
func removesAnyFeature(current, desired netem.Config) bool {
	currentDesugared := current.Desugar()
	desiredDesugared := desired.Desugar()

	cf := currentDesugared.Features()
	df := desiredDesugared.Features()
	for feature := range cf {
		if !df[feature] {
			return true
		}
	}
	return false
}

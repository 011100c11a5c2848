// Package reconcile turns a stream of possibly revised transcription results
// into an append-only stream of text to type. Characters, once emitted, are
// never taken back.
package reconcile

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"opentranscribe/transcriber"
)

type ActionKind int

const (
	NoOp ActionKind = iota
	UpdateDisplay
	Emit
)

func (k ActionKind) String() string {
	switch k {
	case NoOp:
		return "noop"
	case UpdateDisplay:
		return "update_display"
	case Emit:
		return "emit"
	}
	return fmt.Sprintf("action(%d)", int(k))
}

type Action struct {
	Kind ActionKind
	Text string
}

// Policy decides what to emit when a final result does not extend the text
// already emitted.
type Policy int

const (
	// RevisionRebase emits the whole revised text and takes it as the new
	// baseline.
	RevisionRebase Policy = iota
	// RevisionSuffix emits only the characters past the length already
	// emitted, and nothing when the revision is not longer.
	RevisionSuffix
)

func (p Policy) String() string {
	switch p {
	case RevisionRebase:
		return "rebase"
	case RevisionSuffix:
		return "suffix"
	}
	return fmt.Sprintf("policy(%d)", int(p))
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rebase":
		return RevisionRebase, nil
	case "suffix":
		return RevisionSuffix, nil
	}
	return 0, fmt.Errorf("unknown revision policy %q (want rebase or suffix)", s)
}

// Reconciler is not safe for concurrent use; the session controller owns it.
type Reconciler struct {
	policy    Policy
	committed string
	display   string
}

func New(policy Policy) *Reconciler {
	return &Reconciler{policy: policy}
}

func (r *Reconciler) OnEvent(ev transcriber.Event) Action {
	if !ev.Final {
		r.display = ev.Text
		return Action{Kind: UpdateDisplay, Text: ev.Text}
	}

	defer func() { r.display = r.committed }()

	if strings.HasPrefix(ev.Text, r.committed) {
		delta := ev.Text[len(r.committed):]
		if delta == "" {
			return Action{Kind: NoOp}
		}
		r.committed = ev.Text
		return Action{Kind: Emit, Text: delta}
	}

	switch r.policy {
	case RevisionSuffix:
		n := utf8.RuneCountInString(r.committed)
		delta := skipRunes(ev.Text, n)
		if delta == "" {
			return Action{Kind: NoOp}
		}
		r.committed = ev.Text
		return Action{Kind: Emit, Text: delta}
	default:
		r.committed = ev.Text
		if ev.Text == "" {
			return Action{Kind: NoOp}
		}
		return Action{Kind: Emit, Text: ev.Text}
	}
}

func skipRunes(s string, n int) string {
	for i := range s {
		if n == 0 {
			return s[i:]
		}
		n--
	}
	return ""
}

// Committed is the text whose characters have all been emitted.
func (r *Reconciler) Committed() string { return r.committed }

// Display is the text to show: the latest hypothesis, or the committed text
// after a final result.
func (r *Reconciler) Display() string { return r.display }

func (r *Reconciler) Reset() {
	r.committed = ""
	r.display = ""
}

package reconcile

import (
	"strings"
	"testing"

	"opentranscribe/transcriber"
)

func interim(s string) transcriber.Event { return transcriber.Event{Text: s} }
func final(s string) transcriber.Event   { return transcriber.Event{Text: s, Final: true} }

func TestOnEvent(t *testing.T) {
	type step struct {
		ev   transcriber.Event
		want Action
	}
	tests := []struct {
		name          string
		policy        Policy
		steps         []step
		wantCommitted string
		wantDisplay   string
	}{
		{
			name: "interim then final",
			steps: []step{
				{interim("t"), Action{UpdateDisplay, "t"}},
				{interim("the"), Action{UpdateDisplay, "the"}},
				{final("the cat"), Action{Emit, "the cat"}},
			},
			wantCommitted: "the cat",
			wantDisplay:   "the cat",
		},
		{
			name: "final extends committed",
			steps: []step{
				{interim("t"), Action{UpdateDisplay, "t"}},
				{interim("the"), Action{UpdateDisplay, "the"}},
				{final("the cat"), Action{Emit, "the cat"}},
				{final("the cat sat"), Action{Emit, " sat"}},
			},
			wantCommitted: "the cat sat",
			wantDisplay:   "the cat sat",
		},
		{
			name: "repeated final is a no-op",
			steps: []step{
				{final("hello"), Action{Emit, "hello"}},
				{final("hello"), Action{Kind: NoOp}},
			},
			wantCommitted: "hello",
			wantDisplay:   "hello",
		},
		{
			name: "interim does not touch committed",
			steps: []step{
				{final("hello"), Action{Emit, "hello"}},
				{interim("hello wor"), Action{UpdateDisplay, "hello wor"}},
			},
			wantCommitted: "hello",
			wantDisplay:   "hello wor",
		},
		{
			name: "empty final on empty baseline",
			steps: []step{
				{final(""), Action{Kind: NoOp}},
			},
		},
		{
			name:   "rebase on revision",
			policy: RevisionRebase,
			steps: []step{
				{final("the cat"), Action{Emit, "the cat"}},
				{final("a cat sat"), Action{Emit, "a cat sat"}},
				{final("a cat sat down"), Action{Emit, " down"}},
			},
			wantCommitted: "a cat sat down",
			wantDisplay:   "a cat sat down",
		},
		{
			name:   "suffix on longer revision",
			policy: RevisionSuffix,
			steps: []step{
				{final("the cat"), Action{Emit, "the cat"}},
				{final("a cat sat"), Action{Emit, "at"}},
			},
			wantCommitted: "a cat sat",
			wantDisplay:   "a cat sat",
		},
		{
			name:   "suffix on shorter revision",
			policy: RevisionSuffix,
			steps: []step{
				{final("the cat"), Action{Emit, "the cat"}},
				{final("a cat"), Action{Kind: NoOp}},
			},
			wantCommitted: "the cat",
			wantDisplay:   "the cat",
		},
		{
			name:   "suffix counts characters not bytes",
			policy: RevisionSuffix,
			steps: []step{
				{final("café"), Action{Emit, "café"}},
				{final("cafe au lait"), Action{Emit, " au lait"}},
			},
			wantCommitted: "cafe au lait",
			wantDisplay:   "cafe au lait",
		},
		{
			name: "multibyte delta",
			steps: []step{
				{final("naïve"), Action{Emit, "naïve"}},
				{final("naïve café"), Action{Emit, " café"}},
			},
			wantCommitted: "naïve café",
			wantDisplay:   "naïve café",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.policy)
			for i, s := range tt.steps {
				if got := r.OnEvent(s.ev); got != s.want {
					t.Fatalf("step %d: OnEvent(%+v) = %+v, want %+v", i, s.ev, got, s.want)
				}
			}
			if r.Committed() != tt.wantCommitted {
				t.Errorf("Committed() = %q, want %q", r.Committed(), tt.wantCommitted)
			}
			if r.Display() != tt.wantDisplay {
				t.Errorf("Display() = %q, want %q", r.Display(), tt.wantDisplay)
			}
		})
	}
}

func TestInterimOnlyEmitsNothing(t *testing.T) {
	r := New(RevisionRebase)
	for _, s := range []string{"h", "he", "hel", "hell", "hello"} {
		if a := r.OnEvent(interim(s)); a.Kind == Emit {
			t.Fatalf("interim %q emitted %q", s, a.Text)
		}
	}
	if r.Committed() != "" {
		t.Errorf("committed = %q", r.Committed())
	}
}

// For a growing sequence of finals the concatenated emissions equal the
// last final text exactly.
func TestEmissionsReconstructFinalText(t *testing.T) {
	finals := []string{"so", "so I", "so I was", "so I was thinking", "so I was thinking maybe"}
	for _, policy := range []Policy{RevisionRebase, RevisionSuffix} {
		t.Run(policy.String(), func(t *testing.T) {
			r := New(policy)
			var typed strings.Builder
			for _, f := range finals {
				r.OnEvent(interim(f + " ..."))
				if a := r.OnEvent(final(f)); a.Kind == Emit {
					typed.WriteString(a.Text)
				}
				if !strings.HasPrefix(f, r.Committed()) {
					t.Fatalf("committed %q is not a prefix of %q", r.Committed(), f)
				}
			}
			if typed.String() != finals[len(finals)-1] {
				t.Errorf("typed %q, want %q", typed.String(), finals[len(finals)-1])
			}
		})
	}
}

func TestReset(t *testing.T) {
	r := New(RevisionRebase)
	r.OnEvent(final("hello"))
	r.OnEvent(interim("hello there"))
	r.Reset()
	if r.Committed() != "" || r.Display() != "" {
		t.Fatalf("after Reset: committed %q display %q", r.Committed(), r.Display())
	}
	if a := r.OnEvent(final("hello")); a != (Action{Emit, "hello"}) {
		t.Errorf("after Reset, final = %+v", a)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", RevisionRebase, false},
		{"rebase", RevisionRebase, false},
		{"Suffix", RevisionSuffix, false},
		{"diff", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, %v", tt.in, got, err)
		}
	}
}

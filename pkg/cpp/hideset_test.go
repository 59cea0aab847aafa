package cpp

import "testing"

func TestHidesetContains(t *testing.T) {
	h := newHideset("FOO")
	if !hidesetContains(h, "FOO") {
		t.Error("expected FOO in hideset")
	}
	if hidesetContains(h, "BAR") {
		t.Error("did not expect BAR in hideset")
	}
	if hidesetContains(nil, "FOO") {
		t.Error("nil hideset should contain nothing")
	}
}

func TestHidesetUnion(t *testing.T) {
	a := newHideset("A")
	b := newHideset("B")
	u := hidesetUnion(a, b)

	if !hidesetContains(u, "A") || !hidesetContains(u, "B") {
		t.Errorf("union missing a member: %v", u)
	}

	// original sets must not be mutated
	if hidesetContains(a, "B") || hidesetContains(b, "A") {
		t.Error("hidesetUnion mutated an input set")
	}
}

func TestHidesetUnionWithEmpty(t *testing.T) {
	a := newHideset("A")
	u := hidesetUnion(a, nil)
	if !hidesetContains(u, "A") {
		t.Error("union with nil should preserve members")
	}
	u = hidesetUnion(nil, a)
	if !hidesetContains(u, "A") {
		t.Error("union with nil should preserve members regardless of order")
	}
}

func TestHidesetIntersection(t *testing.T) {
	a := hidesetUnion(newHideset("A"), newHideset("B"))
	b := hidesetUnion(newHideset("B"), newHideset("C"))
	i := hidesetIntersection(a, b)

	if !hidesetContains(i, "B") {
		t.Error("expected B in intersection")
	}
	if hidesetContains(i, "A") || hidesetContains(i, "C") {
		t.Errorf("intersection has extra members: %v", i)
	}
}

func TestHidesetIntersectionEmpty(t *testing.T) {
	a := newHideset("A")
	b := newHideset("B")
	i := hidesetIntersection(a, b)
	if len(i) != 0 {
		t.Errorf("expected empty intersection, got %v", i)
	}
	if hidesetIntersection(nil, a) != nil {
		t.Error("intersection with nil should be nil")
	}
}

func TestCloneHidesetIndependence(t *testing.T) {
	a := newHideset("A")
	clone := cloneHideset(a)
	clone["B"] = struct{}{}

	if hidesetContains(a, "B") {
		t.Error("mutating a clone must not affect the original")
	}
	if cloneHideset(nil) != nil {
		t.Error("cloning an empty hideset should stay nil")
	}
}

func TestAddHideset(t *testing.T) {
	toks := []Token{
		{Type: PP_IDENTIFIER, Text: "x"},
		{Type: PP_IDENTIFIER, Text: "y", Hideset: newHideset("OLD")},
	}
	out := addHideset(toks, newHideset("NEW"))

	if !hidesetContains(out[0].Hideset, "NEW") {
		t.Error("expected NEW added to first token's hideset")
	}
	if !hidesetContains(out[1].Hideset, "OLD") || !hidesetContains(out[1].Hideset, "NEW") {
		t.Errorf("expected both OLD and NEW present, got %v", out[1].Hideset)
	}
	// original slice untouched
	if hidesetContains(toks[0].Hideset, "NEW") {
		t.Error("addHideset must not mutate the input slice in place")
	}
}

func TestAddHidesetNoop(t *testing.T) {
	toks := []Token{{Type: PP_IDENTIFIER, Text: "x"}}
	out := addHideset(toks, nil)
	if len(out) != 1 || hidesetContains(out[0].Hideset, "anything") {
		t.Error("adding an empty hideset should be a no-op")
	}
}

package cval

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, doc string) Value {
	t.Helper()
	v, err := FromJSON([]byte(doc))
	if err != nil {
		t.Fatalf("FromJSON(%q): %v", doc, err)
	}
	return v
}

// FromJSON

func TestFromJSON_Kinds(t *testing.T) {
	cases := []struct {
		doc  string
		want Kind
	}{
		{`null`, KindNull},
		{`true`, KindBool},
		{`42`, KindNumber},
		{`"s"`, KindString},
		{`[1,2]`, KindSequence},
		{`{"k":"v"}`, KindMapping},
	}
	for _, tc := range cases {
		if got := decode(t, tc.doc).Kind(); got != tc.want {
			t.Errorf("FromJSON(%s).Kind() = %v, want %v", tc.doc, got, tc.want)
		}
	}
}

func TestFromJSON_RejectsInvalid(t *testing.T) {
	for _, doc := range []string{``, `{`, `{"a":}`, `1 2`} {
		if _, err := FromJSON([]byte(doc)); err == nil {
			t.Errorf("FromJSON(%q) should fail", doc)
		}
	}
}

func TestFromJSON_NumberLiteralKept(t *testing.T) {
	v := decode(t, `{"n":1.250}`)
	n, _ := v.Get("n")
	if n.NumberLiteral() != "1.250" {
		t.Fatalf("literal = %q, want 1.250", n.NumberLiteral())
	}
}

// Equal

func TestEqual_KeyOrderIrrelevant(t *testing.T) {
	a := decode(t, `{"x":1,"y":[true,null]}`)
	b := decode(t, `{"y":[true,null],"x":1}`)
	if !Equal(a, b) {
		t.Fatal("values differing only in key order must be equal")
	}
}

func TestEqual_SequenceOrderMatters(t *testing.T) {
	a := decode(t, `[1,2]`)
	b := decode(t, `[2,1]`)
	if Equal(a, b) {
		t.Fatal("sequences with different element order must not be equal")
	}
}

func TestEqual_NumbersByValue(t *testing.T) {
	if !Equal(decode(t, `1.5`), decode(t, `1.50`)) {
		t.Fatal("1.5 and 1.50 should compare equal by value")
	}
	if Equal(decode(t, `1`), decode(t, `2`)) {
		t.Fatal("1 and 2 must differ")
	}
}

func TestEqual_KindMismatch(t *testing.T) {
	if Equal(decode(t, `"1"`), decode(t, `1`)) {
		t.Fatal("string and number must not be equal")
	}
	if Equal(decode(t, `null`), decode(t, `false`)) {
		t.Fatal("null and false must not be equal")
	}
}

// Clone / With / Without

func TestClone_Independent(t *testing.T) {
	orig := decode(t, `{"a":[1,2]}`)
	clone := orig.Clone()
	if !Equal(orig, clone) {
		t.Fatal("clone must equal the original")
	}
	// mutate the clone's backing slice; the original must not see it
	seq, _ := clone.Get("a")
	seq.Sequence()[0] = Int(99)
	got, _ := orig.Get("a")
	if got.Sequence()[0].NumberLiteral() != "1" {
		t.Fatal("original was mutated through the clone")
	}
}

func TestWithWithout(t *testing.T) {
	v := decode(t, `{"keep":1,"drop":2}`)
	v2 := v.Without("drop")
	if _, ok := v2.Get("drop"); ok {
		t.Fatal("Without left the key behind")
	}
	if _, ok := v.Get("drop"); !ok {
		t.Fatal("Without mutated the receiver")
	}
	v3 := v2.With("added", String("x"))
	if got, ok := v3.Get("added"); !ok || got.Str() != "x" {
		t.Fatal("With did not add the entry")
	}
}

// FromAny

func TestFromAny_CommonShapes(t *testing.T) {
	v, err := FromAny(map[string]any{
		"title": "post",
		"n":     3,
		"tags":  []any{"a", "b"},
		"ok":    true,
		"none":  nil,
	})
	if err != nil {
		t.Fatalf("FromAny: %v", err)
	}
	if v.Kind() != KindMapping || v.Len() != 5 {
		t.Fatalf("unexpected shape: kind=%v len=%d", v.Kind(), v.Len())
	}
}

func TestFromAny_RejectsUnsupported(t *testing.T) {
	if _, err := FromAny(make(chan int)); err == nil {
		t.Fatal("channels should be rejected")
	}
	if _, err := FromAny(map[string]any{"f": func() {}}); err == nil {
		t.Fatal("nested functions should be rejected")
	}
}

// JSON round-trip

func TestMarshalJSON_RoundTrip(t *testing.T) {
	doc := `{"a":[1,"two",null,{"b":false}],"c":"d/e"}`
	v := decode(t, doc)
	out, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back Value
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !Equal(v, back) {
		t.Fatalf("round trip changed the value: %s -> %s", doc, out)
	}
}

func TestZeroValueIsNull(t *testing.T) {
	var v Value
	if !v.IsNull() {
		t.Fatal("zero Value should be null")
	}
}

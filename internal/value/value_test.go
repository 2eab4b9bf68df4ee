package value

import (
	"encoding/json"
	"testing"
)

func TestValue_JSONRoundTrip(t *testing.T) {
	cases := []Value{
		Null(),
		String("hello"),
		Int(42),
		Float(3.14),
		Bool(true),
		List([]Value{Int(1), String("two"), Bool(false)}),
		Map(map[string]Value{"a": Int(1), "b": String("x")}),
	}

	for _, v := range cases {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %+v: %v", v, err)
		}
		var got Value
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got.Kind() != v.Kind() {
			t.Errorf("kind mismatch: got %v, want %v", got.Kind(), v.Kind())
		}
	}
}

func TestValue_MapRoundTrip(t *testing.T) {
	meta := map[string]Value{
		"retry_reason": String("timeout"),
		"attempt":      Int(2),
	}
	data, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got map[string]Value
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	s, ok := got["retry_reason"].AsString()
	if !ok || s != "timeout" {
		t.Errorf("retry_reason = %q, ok=%v", s, ok)
	}
	i, ok := got["attempt"].AsInt()
	if !ok || i != 2 {
		t.Errorf("attempt = %d, ok=%v", i, ok)
	}
}

func TestValue_UnknownKindRejected(t *testing.T) {
	var v Value
	err := json.Unmarshal([]byte(`{"kind":"tuple","data":"x"}`), &v)
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

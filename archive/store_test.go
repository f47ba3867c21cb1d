package archive

import (
	"encoding/json"
	"testing"
)

func TestAttributesJSON(t *testing.T) {
	tests := []struct {
		name  string
		attrs map[string][]string
		want  string
	}{
		{"nil map becomes empty object", nil, "{}"},
		{"empty map", map[string][]string{}, "{}"},
		{"single attribute", map[string][]string{"description": {"finance kiosk"}}, `{"description":["finance kiosk"]}`},
	}

	for _, test := range tests {
		got, err := attributesJSON(test.attrs)
		if err != nil {
			t.Fatalf("%s: marshal failed: %v", test.name, err)
		}
		if string(got) != test.want {
			t.Errorf("%s: got %s, want %s", test.name, got, test.want)
		}
	}
}

func TestAttributesJSONRoundTrip(t *testing.T) {
	attrs := map[string][]string{
		"sAMAccountName": {"jdoe"},
		"memberOf":       {"CN=Staff,DC=corp,DC=example,DC=com", "CN=VPN,DC=corp,DC=example,DC=com"},
		"objectSid":      {"S-1-5-21-1-2-3-1105"},
	}

	encoded, err := attributesJSON(attrs)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string][]string
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if len(decoded) != len(attrs) {
		t.Fatalf("got %d attributes, want %d", len(decoded), len(attrs))
	}
	for name, values := range attrs {
		got := decoded[name]
		if len(got) != len(values) {
			t.Errorf("%s: got %v, want %v", name, got, values)
			continue
		}
		for i := range values {
			if got[i] != values[i] {
				t.Errorf("%s[%d]: got %q, want %q", name, i, got[i], values[i])
			}
		}
	}
}

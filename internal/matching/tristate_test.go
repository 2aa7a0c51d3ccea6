package matching

import "testing"

func TestParseTriState(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		input    any
		expected TriState
	}{
		{name: "nil", input: nil, expected: Unknown},
		{name: "bool true", input: true, expected: True},
		{name: "bool false", input: false, expected: False},
		{name: "int one", input: 1, expected: True},
		{name: "int zero", input: 0, expected: False},
		{name: "float one", input: float64(1), expected: True},
		{name: "float other", input: float64(7), expected: Unknown},
		{name: "string true", input: "true", expected: True},
		{name: "string yes padded", input: "  Yes ", expected: True},
		{name: "string no", input: "no", expected: False},
		{name: "string garbage", input: "maybe", expected: Unknown},
		{name: "list first element", input: []any{"true", "false"}, expected: True},
		{name: "empty list", input: []any{}, expected: Unknown},
		{name: "unsupported type", input: struct{}{}, expected: Unknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ParseTriState(tc.input); got != tc.expected {
				t.Fatalf("ParseTriState(%v) = %s, expected %s", tc.input, got, tc.expected)
			}
		})
	}
}

func TestFieldText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		input    any
		expected string
	}{
		{name: "nil", input: nil, expected: ""},
		{name: "string trimmed", input: "  Oncology ", expected: "Oncology"},
		{name: "any list joined", input: []any{"Small Molecule", " Biologics"}, expected: "Small Molecule, Biologics"},
		{name: "string list skips empties", input: []string{"US", "", "EU"}, expected: "US, EU"},
		{name: "number formatted", input: float64(42), expected: "42"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FieldText(tc.input); got != tc.expected {
				t.Fatalf("FieldText(%v) = %q, expected %q", tc.input, got, tc.expected)
			}
		})
	}
}

package destinations

import "testing"

func TestPQStringArray(t *testing.T) {
	cases := []struct {
		name string
		in   []string
		want string
	}{
		{"empty", []string{}, `{}`},
		{"plain", []string{"dest-1", "dest-2"}, `{"dest-1","dest-2"}`},
		{"quote", []string{`de"st`}, `{"de\"st"}`},
		{"backslash", []string{`de\st`}, `{"de\\st"}`},
		{"both", []string{`a\"b`}, `{"a\\\"b"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := pqStringArray(tc.in); got != tc.want {
				t.Fatalf("pqStringArray(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

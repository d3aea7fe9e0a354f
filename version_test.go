package addonsync

import "testing"

func TestVersionCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{name: "equal simple", a: "1.0", b: "1.0", want: 0},
		{name: "higher patch wins", a: "1.0.1", b: "1.0", want: 1},
		{name: "higher minor wins", a: "1.3", b: "1.2.9", want: 1},
		{name: "numeric token beats alpha token", a: "1.0", b: "1.0-beta", want: 1},
		{name: "alpha tokens compare lexically", a: "1.0-beta", b: "1.0-alpha", want: 1},
		{name: "underscore separates like dot", a: "2.6_1", b: "2.6", want: 1},
		{name: "leading zeros ignored numerically", a: "1.02", b: "1.2", want: 0},
		{name: "no version sorts before anything", a: "", b: "0.0.1", want: -1},
		{name: "both no version", a: "", b: "", want: 0},
		{name: "trailing detail after space ignored", a: "2.6 (build 7)", b: "2.6", want: 0},
		{name: "double digit beats single digit", a: "1.10", b: "1.9", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseVersion(tt.a).Compare(ParseVersion(tt.b))
			if got != tt.want {
				t.Errorf("Compare(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			// Compare must be antisymmetric.
			if rev := ParseVersion(tt.b).Compare(ParseVersion(tt.a)); rev != -tt.want {
				t.Errorf("Compare(%q, %q) = %d, want %d", tt.b, tt.a, rev, -tt.want)
			}
		})
	}
}

func TestVersionOlderThan(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{name: "older", a: "2.5", b: "2.6", want: true},
		{name: "equal is not older", a: "2.6", b: "2.6", want: false},
		{name: "newer is not older", a: "2.7", b: "2.6", want: false},
		{name: "no version is older than any version", a: "", b: "0.1", want: true},
		{name: "any version is not older than no version", a: "0.1", b: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseVersion(tt.a).OlderThan(ParseVersion(tt.b))
			if got != tt.want {
				t.Errorf("OlderThan(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestVersionIsZero(t *testing.T) {
	if !ParseVersion("").IsZero() {
		t.Error("empty version should be zero")
	}
	if ParseVersion("1.0").IsZero() {
		t.Error("1.0 should not be zero")
	}
	var v Version
	if !v.IsZero() {
		t.Error("zero value should be zero")
	}
}

package entity

import "testing"

func TestRefKey(t *testing.T) {
	tests := []struct {
		ref  Ref
		want string
	}{
		{Ref{Kind: "company", Name: "Acme"}, "company:acme"},
		{Ref{Kind: " Product ", Name: "Widget Pro "}, "product:widget pro"},
		{Ref{Name: "budget"}, ":budget"},
	}
	for _, tt := range tests {
		if got := tt.ref.Key(); got != tt.want {
			t.Errorf("Key(%+v) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

package validation

import "testing"

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		want  bool
	}{
		{name: "regular address", email: "user@example.com", want: true},
		{name: "subdomain", email: "user@mail.example.com", want: true},
		{name: "plus tag", email: "user+tag@example.com", want: true},
		{name: "empty", email: "", want: false},
		{name: "no at sign", email: "userexample.com", want: false},
		{name: "two at signs", email: "user@@example.com", want: false},
		{name: "empty local part", email: "@example.com", want: false},
		{name: "empty domain", email: "user@", want: false},
		{name: "domain without dot", email: "user@example", want: false},
		{name: "domain starts with dot", email: "user@.example.com", want: false},
		{name: "domain ends with dot", email: "user@example.com.", want: false},
		{name: "contains space", email: "user name@example.com", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidEmail(tt.email); got != tt.want {
				t.Errorf("IsValidEmail(%q) = %v, want %v", tt.email, got, tt.want)
			}
		})
	}
}

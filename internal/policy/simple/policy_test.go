package simple

import (
	"errors"
	"testing"
)

func TestPolicyCheck(t *testing.T) {
	t.Parallel()

	p := New(Config{Blocklist: []string{"spam.example", "*.bad.example", " .worse.example "}})
	cases := map[string]bool{
		"https://blog.example/post":       true,
		"http://spam.example/":            false,
		"http://x.bad.example/":           false,
		"http://bad.example/":             false,
		"http://deep.worse.example/":      false,
		"ftp://blog.example/":             false,
		"http://127.0.0.1:8080/":          false,
		"http://10.1.2.3/":                false,
		"http://localhost/":               false,
		"http://[::1]/":                   false,
		"http:///nohost":                  false,
		"https://notbad.example.org/path": true,
	}
	for raw, want := range cases {
		if got := p.Allowed(raw); got != want {
			t.Errorf("Allowed(%q) = %v, want %v", raw, got, want)
		}
	}
	if err := p.Check("http://spam.example/"); !errors.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
}

func TestPolicyAllowPrivate(t *testing.T) {
	t.Parallel()

	p := New(Config{AllowPrivate: true})
	if !p.Allowed("http://127.0.0.1:1234/x") {
		t.Fatal("expected loopback to be allowed")
	}
}

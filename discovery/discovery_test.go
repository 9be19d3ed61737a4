package discovery

import (
	"errors"
	"net"
	"testing"

	"github.com/gostdlib/base/context"
)

func rejectAllTokens(ctx context.Context, token string) error {
	return errors.New("invalid token")
}

type fakeLister struct {
	names []string
}

func (f *fakeLister) ListDestinations() []string { return f.names }

func TestListDestinationsSorted(t *testing.T) {
	lister := &fakeLister{names: []string{"orders.process", "billing.charge", "orders.eu.process"}}
	srv := NewServer(lister, nil)

	got, err := srv.ListDestinations(t.Context(), nil, "")
	if err != nil {
		t.Fatalf("ListDestinations: %v", err)
	}
	want := []string{"billing.charge", "orders.eu.process", "orders.process"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestListDestinationsIPRestriction(t *testing.T) {
	cfg := &Config{AllowedCIDRs: []string{"10.0.0.0/8"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	srv := NewServer(&fakeLister{names: []string{"a"}}, cfg)

	_, err := srv.ListDestinations(t.Context(), &net.TCPAddr{IP: net.ParseIP("192.168.1.1")}, "")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("got %v, want ErrAccessDenied", err)
	}

	got, err := srv.ListDestinations(t.Context(), &net.TCPAddr{IP: net.ParseIP("10.1.2.3")}, "")
	if err != nil {
		t.Fatalf("ListDestinations from allowed IP: %v", err)
	}
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("got %v, want [a]", got)
	}
}

func TestListDestinationsTokenValidationRejects(t *testing.T) {
	cfg := &Config{}
	cfg.TokenValidator = rejectAllTokens
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	srv := NewServer(&fakeLister{names: []string{"a"}}, cfg)

	_, err := srv.ListDestinations(t.Context(), nil, "bad-token")
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("got %v, want ErrAccessDenied", err)
	}
}

func TestConfigDefaultAuthHeader(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.AuthHeader != "authorization" {
		t.Errorf("AuthHeader = %q, want %q", cfg.AuthHeader, "authorization")
	}
}

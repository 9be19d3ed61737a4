package envelope

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
)

func TestCodecRoundTrip(t *testing.T) {
	env := New(TSignal, CallID("call-1"))
	env.ReplyTo = Destination("queue://replies")
	env.ReqTimeoutMillis = 30000
	env.Payload = []byte("hello")
	env.Properties["x-custom"] = "keep-me"

	var c Codec
	wire, err := c.Encode(env)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := c.Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Type != TSignal {
		t.Fatalf("Type = %v, want TSignal", got.Type)
	}
	if got.CallID != env.CallID {
		t.Fatalf("CallID = %v, want %v", got.CallID, env.CallID)
	}
	if string(got.Payload) != "hello" {
		t.Fatalf("Payload = %q, want %q", got.Payload, "hello")
	}
	if got.Properties["x-custom"] != "keep-me" {
		t.Fatalf("unknown property not preserved: %v", got.Properties)
	}
	if got.ReqTimeoutMillis != 30000 {
		t.Fatalf("ReqTimeoutMillis = %d, want 30000", got.ReqTimeoutMillis)
	}
}

func TestCodecFragmentProperties(t *testing.T) {
	env := New(TSignalFragment, CallID("call-2"))
	env.ResponseID = ResponseID("resp-1")
	env.FragmentIndex = 2
	env.FragmentsTotal = 4
	env.Payload = []byte("0123456789")

	var c Codec
	wire, err := c.Encode(env)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := pretty.Compare(
		struct {
			ResponseID     ResponseID
			FragmentIndex  int
			FragmentsTotal int
		}{env.ResponseID, env.FragmentIndex, env.FragmentsTotal},
		struct {
			ResponseID     ResponseID
			FragmentIndex  int
			FragmentsTotal int
		}{got.ResponseID, got.FragmentIndex, got.FragmentsTotal},
	); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUnknownMessageTypeTokenDropsToUnknown(t *testing.T) {
	env := New(TSignal, CallID("call-3"))
	var c Codec
	wire, err := c.Encode(env)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := c.Decode(wire)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got.Properties[PropMessageType] = "SomeFutureType"
	got.Type = TUnknown
	hydrateFromProperties(got)
	if got.Type != TUnknown {
		t.Fatalf("Type = %v, want TUnknown for an unrecognized token", got.Type)
	}
}

func TestParseTypeRoundTrip(t *testing.T) {
	for typ, tok := range wireTypeNames {
		if ParseType(tok) != typ {
			t.Errorf("ParseType(%q) = %v, want %v", tok, ParseType(tok), typ)
		}
	}
	if ParseType("not-a-real-token") != TUnknown {
		t.Errorf("ParseType of unknown token should yield TUnknown")
	}
}

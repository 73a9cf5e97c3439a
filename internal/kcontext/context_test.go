package kcontext

import (
	"testing"
)

func TestWithVersion(t *testing.T) {
	ctx := WithVersion(Background(), "v0.3.0")
	if got := GetVersion(ctx); got != "v0.3.0" {
		t.Fatalf("GetVersion returned %q", got)
	}
}

func TestWithValues(t *testing.T) {
	ctx := WithValues(Background(), map[string]any{"peer.addr": "127.0.0.1:1234"})
	if got := GetStringValue(ctx, "peer.addr"); got != "127.0.0.1:1234" {
		t.Fatalf("GetStringValue returned %q", got)
	}
}

func TestBackgroundInstanceID(t *testing.T) {
	id := Background().Value("instance.id")
	if id == nil {
		t.Fatal("background context must carry an instance id")
	}
	if id != Background().Value("instance.id") {
		t.Fatal("instance id must be stable")
	}
}

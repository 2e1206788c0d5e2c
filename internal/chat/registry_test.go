package chat_test

import (
	"testing"

	"github.com/tannerhall/tinychat/internal/chat"
)

func TestRegistry(t *testing.T) {
	r := chat.NewRegistry()

	if _, ok := r.Get("conv-1"); ok {
		t.Fatal("unexpected conversation in a fresh registry")
	}

	c1 := r.GetOrCreate("conv-1")
	if c2 := r.GetOrCreate("conv-1"); c2 != c1 {
		t.Error("GetOrCreate minted a second conversation for the same ID")
	}
	if got, ok := r.Get("conv-1"); !ok || got != c1 {
		t.Error("Get did not return the created conversation")
	}
	if c3 := r.GetOrCreate("conv-2"); c3 == c1 {
		t.Error("distinct IDs share a conversation")
	}
}

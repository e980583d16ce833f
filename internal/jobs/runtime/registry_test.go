package runtime

import "testing"

type fakeHandler struct {
	jobType string
}

func (h *fakeHandler) Type() string      { return h.jobType }
func (h *fakeHandler) Run(*Context) error { return nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&fakeHandler{jobType: "context_analyze"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, ok := r.Get("context_analyze"); !ok {
		t.Fatal("registered handler not found")
	}
	if _, ok := r.Get("unknown"); ok {
		t.Fatal("unknown job type resolved to a handler")
	}

	if err := r.Register(&fakeHandler{jobType: "context_analyze"}); err == nil {
		t.Fatal("duplicate registration succeeded")
	}
	if err := r.Register(nil); err == nil {
		t.Fatal("nil handler registered")
	}
	if err := r.Register(&fakeHandler{}); err == nil {
		t.Fatal("empty job type registered")
	}
}

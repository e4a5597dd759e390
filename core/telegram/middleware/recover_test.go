package middleware

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

type panicContext struct {
	tele.Context
}

func (panicContext) Get(string) any      { return nil }
func (panicContext) Update() tele.Update { return tele.Update{ID: 5} }
func (panicContext) Sender() *tele.User  { return &tele.User{ID: 77} }

func TestRecoverMiddlewareSwallowsPanic(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error {
		panic("boom")
	})
	if err := h(panicContext{}); err != nil {
		t.Fatalf("recovered handler returned %v", err)
	}
}

func TestRecoverMiddlewarePassesThrough(t *testing.T) {
	called := false
	h := RecoverMiddleware(func(tele.Context) error {
		called = true
		return nil
	})
	if err := h(panicContext{}); err != nil {
		t.Fatalf("handler returned %v", err)
	}
	if !called {
		t.Fatal("inner handler not called")
	}
}

package router

import (
	"context"

	"github.com/crystaldolphin/dolphinbot/internal/bus"
)

// Handler produces a response for an update. A nil response means nothing
// is sent back; a non-nil error is reported as a handler failure.
type Handler interface {
	Handle(ctx context.Context, upd bus.Update) (*Response, error)
}

// HandlerFunc adapts a plain function to Handler.
type HandlerFunc func(ctx context.Context, upd bus.Update) (*Response, error)

func (f HandlerFunc) Handle(ctx context.Context, upd bus.Update) (*Response, error) {
	return f(ctx, upd)
}

// Response is what a handler wants sent back to the originating chat.
type Response struct {
	Text         string
	Buttons      [][]bus.Button
	Reply        bool           // quote the triggering message
	CallbackText string         // short notice shown when answering a button press
	Metadata     map[string]any // extra platform hints merged into the reply
}

// Text returns a plain text response.
func Text(s string) *Response {
	return &Response{Text: s}
}

// Empty reports whether r carries nothing to deliver.
func (r *Response) Empty() bool {
	return r == nil || (r.Text == "" && r.CallbackText == "")
}

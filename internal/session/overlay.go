package session

import (
	"context"
	"sync"
)

type ContentKind int

const (
	ContentFeedback ContentKind = iota
	ContentFailure
)

// Content is what the feedback overlay shows: real feedback or a failure notice.
type Content struct {
	Kind ContentKind
	Text string
}

func Feedback(text string) Content { return Content{Kind: ContentFeedback, Text: text} }

func Failure(text string) Content { return Content{Kind: ContentFailure, Text: text} }

func (c Content) IsError() bool { return c.Kind == ContentFailure }

// OverlayState is a point-in-time view of an Overlay.
type OverlayState struct {
	Shown   bool
	Content Content
}

// Ender tears down a session.
type Ender interface {
	EndSession(ctx context.Context) error
}

// Overlay is the feedback sheet: Hidden until Show, back to Hidden on Dismiss.
type Overlay struct {
	mu      sync.Mutex
	shown   bool
	content Content
}

func (o *Overlay) Show(c Content) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shown = true
	o.content = c
}

func (o *Overlay) Dismiss() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shown = false
	o.content = Content{}
}

func (o *Overlay) State() OverlayState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return OverlayState{Shown: o.shown, Content: o.content}
}

// FinishAndClose ends the session and then hides the overlay. The overlay is
// dismissed even if ending the session reports an error.
func (o *Overlay) FinishAndClose(ctx context.Context, e Ender) error {
	err := e.EndSession(ctx)
	o.Dismiss()
	return err
}

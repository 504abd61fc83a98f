package ideator

import "context"

// Notifier receives every error Generate surfaces to its caller.
type Notifier interface {
	Notify(ctx context.Context, err *Error)
}

type NotifierFunc func(ctx context.Context, err *Error)

func (f NotifierFunc) Notify(ctx context.Context, err *Error) { f(ctx, err) }

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, *Error) {}

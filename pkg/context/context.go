// Package context shortens the standard library context names the way they
// are used throughout the client: context.T, context.F and friends.
package context

import (
	"context"
)

type (
	T = context.Context
	F = context.CancelFunc
	C = context.CancelCauseFunc
)

var (
	Bg               = context.Background
	Cancel           = context.WithCancel
	Timeout          = context.WithTimeout
	Deadline         = context.WithDeadline
	TODO             = context.TODO
	Value            = context.WithValue
	CancelCause      = context.WithCancelCause
	Cause            = context.Cause
	Canceled         = context.Canceled
	DeadlineExceeded = context.DeadlineExceeded
)

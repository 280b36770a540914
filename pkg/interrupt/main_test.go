package interrupt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestRunsHandlersLastFirst(t *testing.T) {
	var order []int
	AddHandler(func() { order = append(order, 1) })
	AddHandler(func() { order = append(order, 2) })
	assert.False(t, Requested())
	Request()
	Request()
	select {
	case <-Done():
	case <-time.After(time.Second):
		t.Fatal("handlers did not run")
	}
	assert.True(t, Requested())
	require.Equal(t, []int{2, 1}, order)

	late := make(chan struct{})
	AddHandler(func() { close(late) })
	select {
	case <-late:
	default:
		t.Fatal("late handler not run at once")
	}
	assert.Contains(t, GoroutineDump(), "goroutine")
}

package shutdown

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShutdown_ReverseOrderOnce(t *testing.T) {
	h := NewHandler(nil)

	var order []int
	h.RegisterShutdownFunc(func() error { order = append(order, 1); return nil })
	h.RegisterShutdownFunc(func() error { order = append(order, 2); return errors.New("ignored") })
	h.RegisterShutdownFunc(func() error { order = append(order, 3); return nil })

	h.Shutdown()
	h.Shutdown()

	assert.Equal(t, []int{3, 2, 1}, order)
}

func TestShutdownWithTimeout(t *testing.T) {
	fast := NewHandler(nil)
	fast.RegisterShutdownFunc(func() error { return nil })
	assert.NoError(t, fast.ShutdownWithTimeout(time.Second))

	slow := NewHandler(nil)
	slow.RegisterShutdownFunc(func() error {
		time.Sleep(200 * time.Millisecond)
		return nil
	})
	assert.Error(t, slow.ShutdownWithTimeout(10*time.Millisecond))
}

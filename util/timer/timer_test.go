package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSetInterval(t *testing.T) {
	var calls atomic.Int32
	tk := SetInterval(5*time.Millisecond, func() { calls.Add(1) })
	defer tk.Stop()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)
}

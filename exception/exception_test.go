package exception

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSafeGoRecovers(t *testing.T) {
	done := make(chan struct{})
	SafeGo("boom", func() {
		defer close(done)
		panic("boom")
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("goroutine did not run")
	}

	ran := make(chan bool, 1)
	SafeGo("after", func() { ran <- true })
	assert.True(t, <-ran)
}

package cdnsift

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cdnsift/cdnsift/data"
)

func TestAnnotateReturnsAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewResolver(ctx, "127.0.0.1:1", 2, time.Minute)

	assessments := make([]*data.RiskAssessment, 30)
	for i := range assessments {
		assessments[i] = &data.RiskAssessment{Source: fmt.Sprintf("203.0.113.%d", i+1)}
	}

	done := make(chan struct{})
	go func() {
		r.Annotate(assessments)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Annotate did not return after cancellation")
	}
}

func TestTrimTrailingDot(t *testing.T) {
	assert.Equal(t, "host.example.com", trimTrailingDot("host.example.com."))
	assert.Equal(t, "host.example.com", trimTrailingDot("host.example.com"))
	assert.Equal(t, "", trimTrailingDot(""))
}

//go:build unit

package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	sut := NewMetrics()

	sut.Invocation("sent")
	sut.Invocation("sent")
	sut.Invocation("completed")
	sut.Sent(3)
	sut.SendFailed()
	sut.Cursor(7)
	sut.Quota(42)

	assert.Equal(t, 2.0, testutil.ToFloat64(sut.InvocationsCounter.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sut.InvocationsCounter.WithLabelValues("completed")))
	assert.Equal(t, 3.0, testutil.ToFloat64(sut.SentCounter))
	assert.Equal(t, 1.0, testutil.ToFloat64(sut.SendFailureCounter))
	assert.Equal(t, 7.0, testutil.ToFloat64(sut.CursorGauge))
	assert.Equal(t, 42.0, testutil.ToFloat64(sut.QuotaGauge))
}

func TestHandlerExposesMetrics(t *testing.T) {
	sut := NewMetrics()
	sut.Sent(5)

	rec := httptest.NewRecorder()
	sut.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "mailbatch_recipients_sent_total 5")
}

func TestCollectProcessStats(t *testing.T) {
	sut := NewMetrics()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sut.CollectProcessStats(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(sut.MemoryUsageGauge.WithLabelValues("rss")) > 0
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

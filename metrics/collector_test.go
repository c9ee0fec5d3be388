package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roundtable/conversation"
)

func TestCollector_ObservesEngineEvents(t *testing.T) {
	c := NewCollector("test", nil)
	var _ conversation.Observer = c

	c.TurnCommitted(conversation.KindUser)
	c.TurnCommitted(conversation.KindReply)
	c.TurnCommitted(conversation.KindReply)
	c.SpeakerSelected(conversation.ReasonAddressed)
	c.NoResponder()
	c.GenerationFailed()
	c.ExternalFailure("memory")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.turnsTotal.WithLabelValues("reply")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.turnsTotal.WithLabelValues("user")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.selectionsTotal.WithLabelValues("addressed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.noResponderTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.generationFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.externalFailures.WithLabelValues("memory")))
}

func TestCollector_SeparateRegistries(t *testing.T) {
	a := NewCollector("test", nil)
	b := NewCollector("test", nil)
	a.NoResponder()
	assert.Equal(t, 0.0, testutil.ToFloat64(b.noResponderTotal))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector("rt", nil)
	c.RecordHTTPRequest(http.MethodPost, "/chat", http.StatusOK, 120*time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `rt_http_requests_total{method="POST",path="/chat",status="200"} 1`), body)
	assert.Contains(t, body, "rt_http_request_duration_seconds_bucket")
}

package metrics

import (
	"errors"
	"fmt"
	"testing"

	"yield-router-go/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestReason(t *testing.T) {
	assert.Equal(t, "reentrancy", Reason(fmt.Errorf("deposit: %w", models.ErrReentrancy)))
	assert.Equal(t, "source_busy", Reason(fmt.Errorf("withdraw: %w", models.ErrSourceBusy)))
	assert.Equal(t, "invalid_input", Reason(models.ErrAssetNotSupported))
	assert.Equal(t, "internal", Reason(errors.New("disk full")))
}

func TestCollector_Observe(t *testing.T) {
	c := NewCollector("test")

	c.Observe("deposit", "USDC", nil)
	c.Observe("deposit", "USDC", nil)
	c.Observe("deposit", "USDC", models.ErrPaused)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.operations.WithLabelValues("deposit", "USDC", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.rejections.WithLabelValues("deposit", "paused")))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.Observe("deposit", "USDC", nil)
	c.Compensated("deposit", nil)
	c.EventsPublished(3)
	c.Inbound("credited")
}

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordItems(t *testing.T) {
	success := IngestItems.WithLabelValues("test-op", "success")
	failure := IngestItems.WithLabelValues("test-op", "failure")
	beforeOK := testutil.ToFloat64(success)
	beforeFail := testutil.ToFloat64(failure)

	RecordItems("test-op", 3, 1)
	RecordItems("test-op", 0, 0)

	assert.Equal(t, beforeOK+3, testutil.ToFloat64(success))
	assert.Equal(t, beforeFail+1, testutil.ToFloat64(failure))
}

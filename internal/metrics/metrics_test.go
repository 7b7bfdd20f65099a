package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	// Calling Init twice must not panic on duplicate registration.
	Init()
	Init()
}

func TestObserveHistory(t *testing.T) {
	before := testutil.ToFloat64(historyOutcomesTotal.WithLabelValues("degraded"))
	ObserveHistory("degraded", 5)
	if val := testutil.ToFloat64(historyOutcomesTotal.WithLabelValues("degraded")) - before; val != 1 {
		t.Errorf("Expected degraded outcome to grow by 1, got %f", val)
	}
	if val := testutil.CollectAndCount(historyPages); val != 1 {
		t.Errorf("Expected one history pages histogram, got %d", val)
	}
}

func TestObserveFragmentsIgnoresNonPositive(t *testing.T) {
	before := testutil.ToFloat64(fragmentsTotal.WithLabelValues("orphaned"))
	ObserveFragments("orphaned", 0)
	ObserveFragments("orphaned", -3)
	ObserveFragments("orphaned", 2)
	if val := testutil.ToFloat64(fragmentsTotal.WithLabelValues("orphaned")) - before; val != 2 {
		t.Errorf("Expected orphaned fragments to grow by 2, got %f", val)
	}
}

func TestObserveRecordAndSinkError(t *testing.T) {
	hubBefore := testutil.ToFloat64(recordsTotal.WithLabelValues("hub"))
	sinkBefore := testutil.ToFloat64(sinkErrorsTotal.WithLabelValues("local"))
	ObserveRecord("hub")
	ObserveSinkError("local")
	if val := testutil.ToFloat64(recordsTotal.WithLabelValues("hub")) - hubBefore; val != 1 {
		t.Errorf("Expected hub records to grow by 1, got %f", val)
	}
	if val := testutil.ToFloat64(sinkErrorsTotal.WithLabelValues("local")) - sinkBefore; val != 1 {
		t.Errorf("Expected sink errors to grow by 1, got %f", val)
	}
}

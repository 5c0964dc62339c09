package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordEventDispatchCountsOutcomes(t *testing.T) {
	Init(nil, nil)

	successBefore := testutil.ToFloat64(eventsDispatched.WithLabelValues(resultSuccess))
	errorBefore := testutil.ToFloat64(eventsDispatched.WithLabelValues(resultError))

	RecordEventDispatch(nil)
	RecordEventDispatch(nil)
	RecordEventDispatch(errors.New("decode failed"))

	if got := testutil.ToFloat64(eventsDispatched.WithLabelValues(resultSuccess)) - successBefore; got != 2 {
		t.Fatalf("success dispatches = %v, want 2", got)
	}
	if got := testutil.ToFloat64(eventsDispatched.WithLabelValues(resultError)) - errorBefore; got != 1 {
		t.Fatalf("failed dispatches = %v, want 1", got)
	}
}

func TestRecordOperationCountsResults(t *testing.T) {
	Init(nil, nil)

	okBefore := testutil.ToFloat64(operationTotal.WithLabelValues("station.add", resultSuccess))
	errBefore := testutil.ToFloat64(operationTotal.WithLabelValues("station.add", resultError))

	RecordOperation("station.add", nil, 5*time.Millisecond)
	RecordOperation("station.add", errors.New("rejected"), time.Millisecond)

	if got := testutil.ToFloat64(operationTotal.WithLabelValues("station.add", resultSuccess)) - okBefore; got != 1 {
		t.Fatalf("success operations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(operationTotal.WithLabelValues("station.add", resultError)) - errBefore; got != 1 {
		t.Fatalf("failed operations = %v, want 1", got)
	}
}

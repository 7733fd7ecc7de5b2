package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorRefreshesGauges(t *testing.T) {
	c := NewCollector(DomainCounts{
		InspectionsByStatus: func(ctx context.Context) (map[string]int, error) {
			return map[string]int{"scheduled": 2, "completed": 1}, nil
		},
		ComponentsByStatus: func(ctx context.Context) (map[string]int, error) {
			return map[string]int{"active": 4}, nil
		},
		Customers: func(ctx context.Context) (int, error) { return 7, nil },
	}, 0)

	c.Collect(context.Background())

	assert.Equal(t, 2.0, testutil.ToFloat64(InspectionsTotal.WithLabelValues("scheduled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(InspectionsTotal.WithLabelValues("completed")))
	assert.Equal(t, 4.0, testutil.ToFloat64(ComponentsTotal.WithLabelValues("active")))
	assert.Equal(t, 7.0, testutil.ToFloat64(CustomersTotal))
}

func TestCollectorKeepsValuesOnSourceFailure(t *testing.T) {
	CustomersTotal.Set(3)

	c := NewCollector(DomainCounts{
		Customers: func(ctx context.Context) (int, error) { return 0, errors.New("store down") },
	}, 0)
	c.Collect(context.Background())

	assert.Equal(t, 3.0, testutil.ToFloat64(CustomersTotal))
}

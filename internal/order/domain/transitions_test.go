package domain

import (
	"testing"

	"github.com/loomworks/loomline/internal/lifecycle"
	"github.com/stretchr/testify/assert"
)

func TestOrderHappyPath(t *testing.T) {
	path := []OrderStatus{
		OrderStatusPending,
		OrderStatusReviewed,
		OrderStatusQuoteSent,
		OrderStatusConfirmed,
		OrderStatusInProduction,
		OrderStatusProductionComplete,
		OrderStatusQualityCheck,
		OrderStatusShipped,
		OrderStatusDelivered,
	}

	for i := 0; i < len(path)-1; i++ {
		_, err := Transitions.Edge(string(path[i]), string(path[i+1]))
		assert.NoError(t, err, "edge %s -> %s", path[i], path[i+1])
	}
}

func TestOrderCancellationGating(t *testing.T) {
	cancellable := []OrderStatus{
		OrderStatusPending,
		OrderStatusReviewed,
		OrderStatusQuoteSent,
		OrderStatusConfirmed,
	}
	for _, status := range cancellable {
		edge, err := Transitions.Edge(string(status), string(OrderStatusCancelled))
		assert.NoError(t, err, "cancel from %s", status)
		assert.Equal(t, lifecycle.SideCustomer, edge.Side)
	}

	// Once production has started cancellation is off the table.
	notCancellable := []OrderStatus{
		OrderStatusInProduction,
		OrderStatusProductionComplete,
		OrderStatusQualityCheck,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusRejected,
		OrderStatusCancelled,
	}
	for _, status := range notCancellable {
		_, err := Transitions.Edge(string(status), string(OrderStatusCancelled))
		assert.ErrorIs(t, err, lifecycle.ErrInvalidTransition, "cancel from %s", status)
	}
}

func TestOrderDecisionFork(t *testing.T) {
	assert.ElementsMatch(t,
		[]string{
			string(OrderStatusConfirmed),
			string(OrderStatusRejected),
			string(OrderStatusCancelled),
		},
		Transitions.ReachableFrom(string(OrderStatusQuoteSent)),
	)

	// Rejection and delivery are terminal.
	assert.Empty(t, Transitions.ReachableFrom(string(OrderStatusRejected)))
	assert.Empty(t, Transitions.ReachableFrom(string(OrderStatusDelivered)))
}

func TestOrderEdgeSides(t *testing.T) {
	manufacturerEdges := map[OrderStatus]OrderStatus{
		OrderStatusPending:            OrderStatusReviewed,
		OrderStatusReviewed:           OrderStatusQuoteSent,
		OrderStatusConfirmed:          OrderStatusInProduction,
		OrderStatusInProduction:       OrderStatusProductionComplete,
		OrderStatusProductionComplete: OrderStatusQualityCheck,
		OrderStatusQualityCheck:       OrderStatusShipped,
	}
	for from, to := range manufacturerEdges {
		edge, err := Transitions.Edge(string(from), string(to))
		assert.NoError(t, err)
		assert.Equal(t, lifecycle.SideManufacturer, edge.Side, "%s -> %s", from, to)
	}

	customerEdges := map[OrderStatus]OrderStatus{
		OrderStatusQuoteSent: OrderStatusConfirmed,
		OrderStatusShipped:   OrderStatusDelivered,
	}
	for from, to := range customerEdges {
		edge, err := Transitions.Edge(string(from), string(to))
		assert.NoError(t, err)
		assert.Equal(t, lifecycle.SideCustomer, edge.Side, "%s -> %s", from, to)
	}
}

func TestProductionStarted(t *testing.T) {
	assert.False(t, ProductionStarted(OrderStatusPending))
	assert.False(t, ProductionStarted(OrderStatusConfirmed))
	assert.True(t, ProductionStarted(OrderStatusInProduction))
	assert.True(t, ProductionStarted(OrderStatusDelivered))
	assert.False(t, ProductionStarted(OrderStatusCancelled))
}

package domain

import "github.com/loomworks/loomline/internal/lifecycle"

// Casbin actions for order edges.
const (
	ActionOrderReview       = "order.review"
	ActionOrderQuote        = "order.quote"
	ActionOrderConfirm      = "order.confirm"
	ActionOrderReject       = "order.reject"
	ActionOrderCancel       = "order.cancel"
	ActionOrderStart        = "order.start_production"
	ActionOrderComplete     = "order.complete_production"
	ActionOrderQualityCheck = "order.quality_check"
	ActionOrderShip         = "order.ship"
	ActionOrderDeliver      = "order.deliver"
)

// Transitions is the legal-transition table for orders. Cancellation stays
// available to the owning customer up to, and excluding, IN_PRODUCTION.
var Transitions = lifecycle.Table{
	string(OrderStatusPending): {
		{Target: string(OrderStatusReviewed), Side: lifecycle.SideManufacturer, Action: ActionOrderReview},
		{Target: string(OrderStatusCancelled), Side: lifecycle.SideCustomer, Action: ActionOrderCancel},
	},
	string(OrderStatusReviewed): {
		{Target: string(OrderStatusQuoteSent), Side: lifecycle.SideManufacturer, Action: ActionOrderQuote},
		{Target: string(OrderStatusCancelled), Side: lifecycle.SideCustomer, Action: ActionOrderCancel},
	},
	string(OrderStatusQuoteSent): {
		{Target: string(OrderStatusConfirmed), Side: lifecycle.SideCustomer, Action: ActionOrderConfirm},
		{Target: string(OrderStatusRejected), Side: lifecycle.SideCustomer, Action: ActionOrderReject},
		{Target: string(OrderStatusCancelled), Side: lifecycle.SideCustomer, Action: ActionOrderCancel},
	},
	string(OrderStatusConfirmed): {
		{Target: string(OrderStatusInProduction), Side: lifecycle.SideManufacturer, Action: ActionOrderStart},
		{Target: string(OrderStatusCancelled), Side: lifecycle.SideCustomer, Action: ActionOrderCancel},
	},
	string(OrderStatusRejected): {},
	string(OrderStatusInProduction): {
		{Target: string(OrderStatusProductionComplete), Side: lifecycle.SideManufacturer, Action: ActionOrderComplete},
	},
	string(OrderStatusProductionComplete): {
		{Target: string(OrderStatusQualityCheck), Side: lifecycle.SideManufacturer, Action: ActionOrderQualityCheck},
	},
	string(OrderStatusQualityCheck): {
		{Target: string(OrderStatusShipped), Side: lifecycle.SideManufacturer, Action: ActionOrderShip},
	},
	string(OrderStatusShipped): {
		{Target: string(OrderStatusDelivered), Side: lifecycle.SideCustomer, Action: ActionOrderDeliver},
	},
	string(OrderStatusDelivered): {},
	string(OrderStatusCancelled): {},
}

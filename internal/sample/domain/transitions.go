package domain

import "github.com/loomworks/loomline/internal/lifecycle"

// Casbin actions for sample edges.
const (
	ActionSampleReview   = "sample.review"
	ActionSampleQuote    = "sample.quote"
	ActionSampleApprove  = "sample.approve"
	ActionSampleReject   = "sample.reject"
	ActionSampleCancel   = "sample.cancel"
	ActionSampleStart    = "sample.start_production"
	ActionSampleComplete = "sample.complete_production"
	ActionSampleShip     = "sample.ship"
	ActionSampleDeliver  = "sample.deliver"
)

// Transitions is the legal-transition table for samples. Cancellation follows
// the same rule as orders: owning customer only, and never once production has
// started.
var Transitions = lifecycle.Table{
	string(SampleStatusRequested): {
		{Target: string(SampleStatusReviewed), Side: lifecycle.SideManufacturer, Action: ActionSampleReview},
		{Target: string(SampleStatusCancelled), Side: lifecycle.SideCustomer, Action: ActionSampleCancel},
	},
	string(SampleStatusReviewed): {
		{Target: string(SampleStatusQuoteSent), Side: lifecycle.SideManufacturer, Action: ActionSampleQuote},
		{Target: string(SampleStatusCancelled), Side: lifecycle.SideCustomer, Action: ActionSampleCancel},
	},
	string(SampleStatusQuoteSent): {
		{Target: string(SampleStatusApproved), Side: lifecycle.SideCustomer, Action: ActionSampleApprove},
		{Target: string(SampleStatusRejected), Side: lifecycle.SideCustomer, Action: ActionSampleReject},
		{Target: string(SampleStatusCancelled), Side: lifecycle.SideCustomer, Action: ActionSampleCancel},
	},
	string(SampleStatusApproved): {
		{Target: string(SampleStatusInProduction), Side: lifecycle.SideManufacturer, Action: ActionSampleStart},
		{Target: string(SampleStatusCancelled), Side: lifecycle.SideCustomer, Action: ActionSampleCancel},
	},
	string(SampleStatusRejected): {},
	string(SampleStatusInProduction): {
		{Target: string(SampleStatusProductionComplete), Side: lifecycle.SideManufacturer, Action: ActionSampleComplete},
	},
	string(SampleStatusProductionComplete): {
		{Target: string(SampleStatusShipped), Side: lifecycle.SideManufacturer, Action: ActionSampleShip},
	},
	string(SampleStatusShipped): {
		{Target: string(SampleStatusDelivered), Side: lifecycle.SideCustomer, Action: ActionSampleDeliver},
	},
	string(SampleStatusDelivered): {},
	string(SampleStatusCancelled): {},
}

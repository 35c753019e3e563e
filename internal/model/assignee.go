package model

// Assignee identifies whose calendar an appointment lands on. It is a closed
// sum: either the provider in person, or one of the provider's employees.
type Assignee interface {
	EntityID() string
	assignee()
}

// Provider offers services and may work the calendar personally.
type Provider struct {
	ID   string
	Name string
	// PaymentRequired gates bookings behind an upfront PIX charge.
	PaymentRequired bool
	// AutoConfirm skips the pending stage for providers that require neither
	// payment nor manual confirmation.
	AutoConfirm bool
	Active      bool
}

func (p Provider) EntityID() string { return p.ID }
func (Provider) assignee()          {}

// Employee works under a company provider and owns a calendar of their own.
type Employee struct {
	ID         string
	ProviderID string
	Name       string
	Active     bool
}

func (e Employee) EntityID() string { return e.ID }
func (Employee) assignee()          {}

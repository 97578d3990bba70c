package models

// OrderDescriptor describes one order armed for auto-print
type OrderDescriptor struct {
	OrderNumber string `json:"orderNumber" validate:"required"`
	Customer    string `json:"customer,omitempty"`
	Sequence    int    `json:"sequence,omitempty"`
}

// TripAutoPrintConfig arms (or disarms) a trip for auto-print.
// It carries no timestamps so that re-arming with the same orders is a no-op.
type TripAutoPrintConfig struct {
	TripID   string            `json:"tripId"`
	TripDate string            `json:"tripDate"`
	Enabled  bool              `json:"enabled"`
	Orders   []OrderDescriptor `json:"orders"`
}

// Key returns the trip identity as tripDate/tripId
func (c *TripAutoPrintConfig) Key() string {
	return c.TripDate + "/" + c.TripID
}

// OrderNumbers returns the order numbers in declared order
func (c *TripAutoPrintConfig) OrderNumbers() []string {
	out := make([]string, 0, len(c.Orders))
	for _, o := range c.Orders {
		out = append(out, o.OrderNumber)
	}
	return out
}

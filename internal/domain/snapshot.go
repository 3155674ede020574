package domain

// SpendingSnapshot is the spending summary for one user. Fields the agent
// leaves out stay at their zero value.
type SpendingSnapshot struct {
	Activities []string `json:"activities"`
	Income     float64  `json:"income"`
	Expenses   float64  `json:"expenses"`
	Insights   string   `json:"insights"`
}

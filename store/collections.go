package store

// Collection names of the back-office data set. The store itself imposes no
// registry, these are the names routes and calculators agree on.
const (
	Drivers         = "drivers"
	Vehicles        = "vehicles"
	Clients         = "clients"
	Orders          = "orders"
	MonthlyOrders   = "monthly_orders"
	Advances        = "advances"
	Documents       = "documents"
	PayrollRuns     = "payroll_runs"
	CommissionRules = "commission_rules"
	EventLog        = "event_log"
)

package payroll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/emar-delivery/backoffice"
	"github.com/emar-delivery/backoffice/store"
)

var (
	// ErrPayrollRunNotFound is returned when processing references a
	// payroll run id that doesn't exist.
	ErrPayrollRunNotFound = errors.New("payroll run not found")
	// ErrPayrollRunNotApproved is returned when deductions are processed
	// against a run that has not been approved.
	ErrPayrollRunNotApproved = errors.New("payroll run not approved")
)

// Advance deduction modes carried on the advance record.
const (
	DeductionFixedAmount = "fixed_amount"
	DeductionPercentage  = "percentage"
)

// AdvanceDetail is one advance's contribution to a driver's monthly
// deduction.
type AdvanceDetail struct {
	AdvanceID        string  `json:"advance_id"`
	AdvanceAmount    float64 `json:"advance_amount"`
	RemainingBalance float64 `json:"remaining_balance"`
	DeductionAmount  float64 `json:"deduction_amount"`
	Reason           string  `json:"reason"`
	DeductionMode    string  `json:"deduction_mode"`
	DeductionValue   float64 `json:"deduction_value"`
}

// AdvanceDeductions is a driver's total advance deduction for a month.
type AdvanceDeductions struct {
	DriverID       string          `json:"driver_id"`
	TotalDeduction float64         `json:"total_deduction"`
	Details        []AdvanceDetail `json:"advance_details"`
}

// DriverPayroll is one driver's computed payroll for a month.
type DriverPayroll struct {
	DriverID          string             `json:"driver_id"`
	DriverName        string             `json:"driver_name"`
	EmploymentType    string             `json:"employment_type"`
	Year              int                `json:"year"`
	Month             int                `json:"month"`
	BaseSalary        float64            `json:"base_salary"`
	CommissionTotal   float64            `json:"commission_total"`
	OrderCount        int                `json:"order_count"`
	GrossSalary       float64            `json:"gross_salary"`
	AdvanceDeduction  float64            `json:"advance_deduction"`
	NetSalary         float64            `json:"net_salary"`
	Currency          string             `json:"currency"`
	CommissionDetails []CommissionDetail `json:"commission_details"`
	AdvanceDetails    []AdvanceDetail    `json:"advance_details"`
	CalculationDate   string             `json:"calculation_date"`
}

// RunFailure records a driver whose payroll could not be computed during a
// run; the run itself still completes for the other drivers.
type RunFailure struct {
	DriverID string `json:"driver_id"`
	Error    string `json:"error"`
}

// RunTotals aggregates a payroll run.
type RunTotals struct {
	BaseSalary  float64 `json:"base_salary"`
	Commission  float64 `json:"commission"`
	GrossSalary float64 `json:"gross_salary"`
	Deductions  float64 `json:"deductions"`
	NetSalary   float64 `json:"net_salary"`
}

// PayrollRun is the computed payroll of many drivers for one month.
type PayrollRun struct {
	Year            int             `json:"year"`
	Month           int             `json:"month"`
	DriverCount     int             `json:"driver_count"`
	FailedCount     int             `json:"failed_count"`
	Results         []DriverPayroll `json:"payroll_results"`
	Failures        []RunFailure    `json:"failures,omitempty"`
	Totals          RunTotals       `json:"totals"`
	Currency        string          `json:"currency"`
	CalculationDate string          `json:"calculation_date"`
}

// ProcessedAdvance records one advance mutation performed while applying an
// approved payroll run's deductions.
type ProcessedAdvance struct {
	AdvanceID       string  `json:"advance_id"`
	DriverID        string  `json:"driver_id"`
	DeductionAmount float64 `json:"deduction_amount"`
	NewPaidAmount   float64 `json:"new_paid_amount"`
	NewStatus       string  `json:"new_status"`
}

// ProcessResult summarizes applied advance deductions for a payroll run.
type ProcessResult struct {
	PayrollRunID      string             `json:"payroll_run_id"`
	ProcessedCount    int                `json:"processed_count"`
	TotalDeducted     float64            `json:"total_deducted"`
	ProcessedAdvances []ProcessedAdvance `json:"processed_advances"`
}

// Bound for concurrent per-driver calculations in a payroll run.
const runMaxWorkers = 4

// Calculator is the payroll engine: base salary plus monthly commissions,
// minus advance deductions, at 3-decimal currency precision.
type Calculator struct {
	store       *store.Store
	commissions *CommissionCalculator
}

// NewCalculator constructs a payroll calculator over the given store.
func NewCalculator(s *store.Store) *Calculator {
	return &Calculator{
		store:       s,
		commissions: NewCommissionCalculator(s),
	}
}

// Commissions exposes the underlying commission calculator.
func (c *Calculator) Commissions() *CommissionCalculator {
	return c.commissions
}

// AdvanceDeductions computes how much of the driver's outstanding advances
// is deducted this month. Per advance: fixed_amount mode deducts the
// configured value, percentage mode deducts that percentage of gross pay
// (base salary plus commission total); either way the deduction is capped
// at the advance's remaining balance.
func (c *Calculator) AdvanceDeductions(ctx context.Context, driverID string, year, month int) (AdvanceDeductions, error) {
	result := AdvanceDeductions{DriverID: driverID, Details: []AdvanceDetail{}}

	driver := c.store.FindByID(ctx, store.Drivers, driverID)
	if driver == nil {
		return result, fmt.Errorf("%w: %s", ErrDriverNotFound, driverID)
	}

	for _, advance := range c.store.Filter(ctx, store.Advances, map[string]any{"driver_id": driverID}) {
		status := advance.GetString("status")
		if status != "active" && status != "partial" {
			continue
		}
		remaining := advance.GetFloat("amount", 0) - advance.GetFloat("paid_amount", 0)
		if remaining <= 0 {
			continue
		}

		mode := advance.GetString("advance_deduction_mode")
		if mode == "" {
			mode = DeductionFixedAmount
		}
		value := advance.GetFloat("advance_deduction_value", 50)

		var deduction float64
		switch mode {
		case DeductionFixedAmount:
			deduction = min(value, remaining)
		case DeductionPercentage:
			commission, err := c.commissions.MonthlyTotal(ctx, driverID, year, month)
			if err != nil {
				return result, err
			}
			gross := commission.TotalCommission + driver.GetFloat("base_salary", 0)
			deduction = min(value/100*gross, remaining)
		default:
			deduction = 0
		}
		if deduction <= 0 {
			continue
		}

		result.TotalDeduction += deduction
		result.Details = append(result.Details, AdvanceDetail{
			AdvanceID:        advance.ID(),
			AdvanceAmount:    advance.GetFloat("amount", 0),
			RemainingBalance: remaining,
			DeductionAmount:  Round(deduction),
			Reason:           advance.GetString("reason"),
			DeductionMode:    mode,
			DeductionValue:   value,
		})
	}
	result.TotalDeduction = Round(result.TotalDeduction)
	return result, nil
}

// DriverPayroll computes the complete payroll for one driver and month.
func (c *Calculator) DriverPayroll(ctx context.Context, driverID string, year, month int) (DriverPayroll, error) {
	driver := c.store.FindByID(ctx, store.Drivers, driverID)
	if driver == nil {
		return DriverPayroll{}, fmt.Errorf("%w: %s", ErrDriverNotFound, driverID)
	}

	baseSalary := driver.GetFloat("base_salary", 0)

	commission, err := c.commissions.MonthlyTotal(ctx, driverID, year, month)
	if err != nil {
		return DriverPayroll{}, err
	}
	advances, err := c.AdvanceDeductions(ctx, driverID, year, month)
	if err != nil {
		return DriverPayroll{}, err
	}

	gross := baseSalary + commission.TotalCommission
	net := gross - advances.TotalDeduction
	cfg := LoadConfig(c.store.DataDir())

	return DriverPayroll{
		DriverID:          driverID,
		DriverName:        driver.GetString("full_name"),
		EmploymentType:    driver.GetString("employment_type"),
		Year:              year,
		Month:             month,
		BaseSalary:        Round(baseSalary),
		CommissionTotal:   Round(commission.TotalCommission),
		OrderCount:        commission.OrderCount,
		GrossSalary:       Round(gross),
		AdvanceDeduction:  Round(advances.TotalDeduction),
		NetSalary:         Round(net),
		Currency:          cfg.Currency,
		CommissionDetails: commission.Details,
		AdvanceDetails:    advances.Details,
		CalculationDate:   backoffice.TimestampNow(),
	}, nil
}

// Run computes payroll for the given drivers, or for every active driver
// when driverIDs is nil. Per-driver calculations run concurrently; a driver
// whose calculation fails is reported in Failures without aborting the run.
func (c *Calculator) Run(ctx context.Context, year, month int, driverIDs []string) (PayrollRun, error) {
	if driverIDs == nil {
		for _, d := range c.store.ReadAll(ctx, store.Drivers) {
			if d.GetBool("is_active", true) {
				driverIDs = append(driverIDs, d.ID())
			}
		}
	}

	run := PayrollRun{
		Year:            year,
		Month:           month,
		Results:         []DriverPayroll{},
		Currency:        LoadConfig(c.store.DataDir()).Currency,
		CalculationDate: backoffice.TimestampNow(),
	}

	var mu sync.Mutex
	tr := backoffice.NewTaskRunner(ctx, runMaxWorkers)
	results := make([]*DriverPayroll, len(driverIDs))
	failures := make([]*RunFailure, len(driverIDs))
	for i, driverID := range driverIDs {
		i, driverID := i, driverID
		tr.Go(func() error {
			dp, err := c.DriverPayroll(tr.GetContext(), driverID, year, month)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures[i] = &RunFailure{DriverID: driverID, Error: err.Error()}
				return nil
			}
			results[i] = &dp
			return nil
		})
	}
	if err := tr.Wait(); err != nil {
		return run, err
	}

	for i := range driverIDs {
		if f := failures[i]; f != nil {
			run.Failures = append(run.Failures, *f)
			continue
		}
		dp := results[i]
		run.Results = append(run.Results, *dp)
		run.Totals.BaseSalary += dp.BaseSalary
		run.Totals.Commission += dp.CommissionTotal
		run.Totals.GrossSalary += dp.GrossSalary
		run.Totals.Deductions += dp.AdvanceDeduction
		run.Totals.NetSalary += dp.NetSalary
	}
	run.DriverCount = len(run.Results)
	run.FailedCount = len(run.Failures)
	run.Totals.BaseSalary = Round(run.Totals.BaseSalary)
	run.Totals.Commission = Round(run.Totals.Commission)
	run.Totals.GrossSalary = Round(run.Totals.GrossSalary)
	run.Totals.Deductions = Round(run.Totals.Deductions)
	run.Totals.NetSalary = Round(run.Totals.NetSalary)
	return run, nil
}

// ProcessAdvanceDeductions applies an approved payroll run's advance
// deductions: each advance's paid_amount grows by the deduction, its status
// moves active -> partial -> paid, and the run record is stamped as
// processed. The run must already be stored in payroll_runs with status
// "approved".
func (c *Calculator) ProcessAdvanceDeductions(ctx context.Context, payrollRunID string) (ProcessResult, error) {
	result := ProcessResult{PayrollRunID: payrollRunID, ProcessedAdvances: []ProcessedAdvance{}}

	run := c.store.FindByID(ctx, store.PayrollRuns, payrollRunID)
	if run == nil {
		return result, fmt.Errorf("%w: %s", ErrPayrollRunNotFound, payrollRunID)
	}
	if run.GetString("status") != "approved" {
		return result, fmt.Errorf("%w: %s", ErrPayrollRunNotApproved, payrollRunID)
	}

	driverResults, _ := run["payroll_results"].([]any)
	for _, dr := range driverResults {
		drm, ok := dr.(map[string]any)
		if !ok {
			continue
		}
		driverResult := backoffice.Record(drm)
		driverID := driverResult.GetString("driver_id")

		details, _ := driverResult["advance_details"].([]any)
		for _, d := range details {
			dm, ok := d.(map[string]any)
			if !ok {
				continue
			}
			detail := backoffice.Record(dm)
			advanceID := detail.GetString("advance_id")
			deduction := detail.GetFloat("deduction_amount", 0)
			if advanceID == "" || deduction <= 0 {
				continue
			}

			advance := c.store.FindByID(ctx, store.Advances, advanceID)
			if advance == nil {
				continue
			}
			newPaid := Round(advance.GetFloat("paid_amount", 0) + deduction)
			amount := advance.GetFloat("amount", 0)
			newStatus := "active"
			switch {
			case newPaid >= amount:
				newStatus = "paid"
			case newPaid > 0:
				newStatus = "partial"
			}

			if _, err := c.store.Update(ctx, store.Advances, advanceID, backoffice.Record{
				"paid_amount":           newPaid,
				"status":                newStatus,
				"last_deduction_date":   time.Now().Format(dateLayout),
				"last_deduction_amount": deduction,
			}); err != nil {
				return result, err
			}

			result.ProcessedAdvances = append(result.ProcessedAdvances, ProcessedAdvance{
				AdvanceID:       advanceID,
				DriverID:        driverID,
				DeductionAmount: deduction,
				NewPaidAmount:   newPaid,
				NewStatus:       newStatus,
			})
			result.TotalDeducted += deduction
		}
	}
	result.TotalDeducted = Round(result.TotalDeducted)
	result.ProcessedCount = len(result.ProcessedAdvances)

	if _, err := c.store.Update(ctx, store.PayrollRuns, payrollRunID, backoffice.Record{
		"advance_deductions_processed": true,
		"total_deducted":               result.TotalDeducted,
		"processed_advances":           result.ProcessedAdvances,
		"processing_date":              backoffice.TimestampNow(),
	}); err != nil {
		return result, err
	}
	return result, nil
}

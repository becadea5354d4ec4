package models

// Cadence is how often automatic pickups are created for a plan.
type Cadence string

const (
	CadenceWeekly   Cadence = "weekly"
	CadenceBiweekly Cadence = "biweekly"
	CadenceMonthly  Cadence = "monthly"
	CadenceManual   Cadence = "manual"
)

// Plan is a catalog entry. IncludedLbs and ExtraRate are the defaults used
// when Stripe price metadata does not carry them.
type Plan struct {
	Name        string
	IncludedLbs float64
	ExtraRate   float64
	Cadence     Cadence
}

const (
	PlanSingleStudent  = "Single/Student Plan"
	PlanFamily         = "Family Plan"
	PlanHousehold      = "Household Plan"
	PlanUltraHousehold = "Ultra Household Plan"
)

var planCatalog = map[string]Plan{
	PlanSingleStudent:  {Name: PlanSingleStudent, IncludedLbs: 30, ExtraRate: 1.60, Cadence: CadenceMonthly},
	PlanFamily:         {Name: PlanFamily, IncludedLbs: 60, ExtraRate: 1.60, Cadence: CadenceBiweekly},
	PlanHousehold:      {Name: PlanHousehold, IncludedLbs: 100, ExtraRate: 1.60, Cadence: CadenceWeekly},
	PlanUltraHousehold: {Name: PlanUltraHousehold, IncludedLbs: 150, ExtraRate: 1.60, Cadence: CadenceWeekly},
}

// LookupPlan returns the catalog entry for name.
func LookupPlan(name string) (Plan, bool) {
	p, ok := planCatalog[name]
	return p, ok
}

// CadenceForPlan maps a plan name to its pickup cadence. Unknown plans are manual.
func CadenceForPlan(name string) Cadence {
	if p, ok := planCatalog[name]; ok {
		return p.Cadence
	}
	return CadenceManual
}

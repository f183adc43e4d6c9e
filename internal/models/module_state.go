package models

// ModuleStatus represents the lifecycle state of a module
type ModuleStatus string

const (
	StatusReady      ModuleStatus = "ready"
	StatusInProgress ModuleStatus = "in_progress"
	StatusError      ModuleStatus = "error"
)

// ModuleState is a point-in-time snapshot of a module's observable state.
// Snapshots are produced by the module's state holder under its lock, so a
// reader never observes a torn progress/message pair.
type ModuleState struct {
	ID          ModuleID     `json:"id"`
	Status      ModuleStatus `json:"status"`
	Progress    int          `json:"progress"` // 0-100
	Message     string       `json:"message,omitempty"`
	CurrentTask string       `json:"current_task,omitempty"`
}

// StartParams carries the operator-supplied parameters for a module run.
// Fields are optional per module: crawlers only need Period, builders may
// take a cycle selector, a provider key, and an expiration offset.
type StartParams struct {
	Period         string `json:"period" validate:"omitempty,len=6,numeric"` // YYYYMM
	Cycle          Cycle  `json:"cycle,omitempty" validate:"omitempty,oneof=N O"`
	Key            string `json:"key,omitempty"`
	ExpirationDays int    `json:"expiration_days,omitempty" validate:"omitempty,min=0,max=365"`
}

// PeriodYearMonth splits the YYYYMM period string. Returns zeros when the
// period is absent or malformed; validation happens at the dispatch boundary.
func (p StartParams) PeriodYearMonth() (year, month int) {
	if len(p.Period) != 6 {
		return 0, 0
	}
	for _, c := range p.Period {
		if c < '0' || c > '9' {
			return 0, 0
		}
	}
	year = int(p.Period[0]-'0')*1000 + int(p.Period[1]-'0')*100 + int(p.Period[2]-'0')*10 + int(p.Period[3]-'0')
	month = int(p.Period[4]-'0')*10 + int(p.Period[5]-'0')
	if month < 1 || month > 12 {
		return 0, 0
	}
	return year, month
}

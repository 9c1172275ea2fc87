package models

import "time"

// Severity grades an alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertCategory identifies the rule family that raised an alert.
type AlertCategory string

const (
	CategoryDormantActivation  AlertCategory = "dormant_activation"
	CategoryLongTrapSignal     AlertCategory = "long_trap_signal"
	CategoryDerivativesHedging AlertCategory = "derivatives_hedging"
	CategoryNewWhaleTop100     AlertCategory = "new_whale_top100"
	CategoryLargeInflow        AlertCategory = "large_inflow"
	CategoryLargeOutflow       AlertCategory = "large_outflow"
)

// Alert is a notification raised by a triggered rule.
type Alert struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Severity  Severity               `json:"severity"`
	Category  AlertCategory          `json:"category"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Read      bool                   `json:"read"`
}

// RuleState is the evaluation state of a rule.
type RuleState string

const (
	RuleIdle      RuleState = "idle"
	RuleChecking  RuleState = "checking"
	RuleTriggered RuleState = "triggered"
	RuleNormal    RuleState = "normal"
)

// RuleStatus is the runtime view of a rule. It is rebuilt on every start.
type RuleStatus struct {
	Name         string        `json:"name"`
	Category     AlertCategory `json:"category"`
	Enabled      bool          `json:"enabled"`
	LastCheck    time.Time     `json:"last_check"`
	TriggerCount int           `json:"trigger_count"`
	Status       RuleState     `json:"status"`
	LastError    string        `json:"last_error,omitempty"`
}

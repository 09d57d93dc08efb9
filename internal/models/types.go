package models

import "strings"

// ScanStatus represents the current state of a scan
type ScanStatus string

const (
	StatusPending   ScanStatus = "pending"
	StatusScanning  ScanStatus = "scanning"
	StatusCompleted ScanStatus = "completed"
	StatusFailed    ScanStatus = "failed"
	StatusPaused    ScanStatus = "paused"
)

// Terminal reports whether no further phase may run for a scan in this state.
func (s ScanStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// PhaseStatus represents the state of a single phase within a scan
type PhaseStatus string

const (
	PhasePending   PhaseStatus = "pending"
	PhaseRunning   PhaseStatus = "running"
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
)

// ScanKind selects the phase template a scan is created from
type ScanKind string

const (
	KindBasic         ScanKind = "basic"
	KindComprehensive ScanKind = "comprehensive"
	KindSubdomain     ScanKind = "subdomain"
)

// Kinds lists every scan kind in display order.
func Kinds() []ScanKind {
	return []ScanKind{KindBasic, KindComprehensive, KindSubdomain}
}

// ParseKind maps user input to a ScanKind. "full" and "advanced" are
// accepted for comprehensive, "subdomains" and "enum" for subdomain.
func ParseKind(s string) (ScanKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "basic", "quick":
		return KindBasic, true
	case "comprehensive", "full", "advanced":
		return KindComprehensive, true
	case "subdomain", "subdomains", "enum":
		return KindSubdomain, true
	}
	return "", false
}

// Prefix returns the id prefix used for records of this kind.
func (k ScanKind) Prefix() string {
	switch k {
	case KindComprehensive:
		return "adv_scan"
	case KindSubdomain:
		return "subenum"
	default:
		return "scan"
	}
}

// Severity represents the severity level of a vulnerability
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Rank orders severities so that a higher rank is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// NotificationType classifies a notification for display
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationWarning NotificationType = "warning"
	NotificationError   NotificationType = "error"
	NotificationSuccess NotificationType = "success"
)

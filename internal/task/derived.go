package task

import (
	"fmt"
	"strings"
	"time"
)

// AutomationLevel is how much human involvement a verification task needs.
type AutomationLevel string

const (
	AutomationManual        AutomationLevel = "manual"
	AutomationSemiAutomated AutomationLevel = "semi_automated"
	AutomationAutomated     AutomationLevel = "automated"
)

// AutomationFor maps an origin task's priority to the verification
// automation level: critical work is verified by hand, high-priority work
// semi-automated, everything else automated.
func AutomationFor(p Priority) AutomationLevel {
	switch p {
	case PriorityCritical:
		return AutomationManual
	case PriorityHigh:
		return AutomationSemiAutomated
	default:
		return AutomationAutomated
	}
}

// NewVerificationTask builds the verification task spawned when origin is
// reported done with passing tests. It depends on the origin.
func NewVerificationTask(origin *Task, now time.Time) *Task {
	level := AutomationFor(origin.Priority)
	criteria := make([]string, 0, len(origin.AcceptanceCriteria)+1)
	for _, c := range origin.AcceptanceCriteria {
		criteria = append(criteria, "Verify: "+c)
	}
	criteria = append(criteria, fmt.Sprintf("Verification mode: %s", level))
	return &Task{
		ID:    NewID("verify"),
		Title: "Verify: " + origin.Title,
		Description: fmt.Sprintf(
			"Run %s verification of %q against its acceptance criteria and report the result.",
			level, origin.Title),
		Priority:           origin.Priority,
		Status:             StatusPending,
		Dependencies:       []string{origin.ID},
		AcceptanceCriteria: criteria,
		FromPlanningTeam:   origin.FromPlanningTeam,
		Kind:               KindVerification,
		Metadata:           Metadata{Team: origin.Metadata.Team},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// NewFollowUpTask builds a follow-up task from an explicit request or a
// follow-up-classified observation. It inherits the origin's demoted
// priority and depends on the origin. The title carries the detail so
// distinct follow-ups from one origin stay distinct to duplicate detection.
func NewFollowUpTask(origin *Task, detail string, now time.Time) *Task {
	return &Task{
		ID:               NewID("followup"),
		Title:            "Follow-up: " + titleFrom(detail, origin.Title),
		Description:      fmt.Sprintf("Follow-up from %q: %s", origin.Title, detail),
		Priority:         origin.Priority.Demote(),
		Status:           StatusPending,
		Dependencies:     []string{origin.ID},
		FromPlanningTeam: origin.FromPlanningTeam,
		Kind:             KindFollowUp,
		Metadata:         Metadata{Team: origin.Metadata.Team},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// titleFrom derives a short title from free-form detail text, falling back
// when the detail is empty.
func titleFrom(detail, fallback string) string {
	detail = strings.TrimSpace(detail)
	if detail == "" {
		return fallback
	}
	const max = 80
	if len(detail) > max {
		return detail[:max]
	}
	return detail
}

// NewInvestigationTask builds the critical, hard-blocking investigation task
// spawned when a reported test failure needs investigation.
func NewInvestigationTask(origin *Task, testName, detail string, now time.Time) *Task {
	return &Task{
		ID:    NewID("investigate"),
		Title: fmt.Sprintf("Investigate failure of %s", testName),
		Description: fmt.Sprintf(
			"Test %s failed while working on %q. %s", testName, origin.Title, detail),
		Priority:         PriorityCritical,
		Status:           StatusPending,
		Dependencies:     []string{origin.ID},
		FromPlanningTeam: origin.FromPlanningTeam,
		Kind:             KindInvestigation,
		Metadata: Metadata{
			Team:      origin.Metadata.Team,
			Escalated: true,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

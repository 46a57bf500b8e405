package protocol

import (
	"math"

	"github.com/fyrsmithlabs/dispatchd/internal/task"
)

// Dashboard is the aggregate view recomputed after every status report and
// served to the hosting shell.
type Dashboard struct {
	Total               int                 `json:"total"`
	ByStatus            map[task.Status]int `json:"by_status"`
	PercentComplete     float64             `json:"percent_complete"`
	VerificationPending int                 `json:"verification_pending"`
}

// BuildDashboard computes aggregates across the whole task set.
func BuildDashboard(tasks []*task.Task) *Dashboard {
	d := &Dashboard{
		ByStatus: make(map[task.Status]int),
	}
	done := 0
	for _, t := range tasks {
		d.Total++
		d.ByStatus[t.Status]++
		if t.Status == task.StatusDone {
			done++
		}
		if t.Kind == task.KindVerification && t.Active() {
			d.VerificationPending++
		}
	}
	if d.Total > 0 {
		d.PercentComplete = math.Round(float64(done)/float64(d.Total)*1000) / 10
	}
	return d
}

// Dashboard returns the current aggregates.
func (s *Service) Dashboard() *Dashboard {
	return BuildDashboard(s.store.All())
}

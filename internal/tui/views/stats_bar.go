package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/mushfiqur/botadmin/internal/backend"
)

// StatsBar displays the headline counters across the top of the dashboard.
type StatsBar struct {
	*tview.TextView
}

// NewStatsBar creates a new stats bar.
func NewStatsBar() *StatsBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	sb := &StatsBar{TextView: tv}
	sb.Update(backend.Stats{}, false)
	return sb
}

// Update refreshes the counters. ok is false until the first stats load.
func (sb *StatsBar) Update(s backend.Stats, ok bool) {
	sb.Clear()
	if !ok {
		_, _ = fmt.Fprint(sb, " [::d]loading stats...[-:-:-]")
		return
	}
	_, _ = fmt.Fprintf(sb,
		" [::b]Users[-:-:-] %d | [::b]Active[-:-:-] %d | [::b]Messages[-:-:-] %d | [::b]Joined today[-:-:-] %d",
		s.TotalUsers, s.ActiveUsers, s.TotalMessages, s.NewJoinsToday)
}

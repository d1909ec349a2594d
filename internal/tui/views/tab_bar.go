package views

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/mushfiqur/botadmin/internal/chat"
)

// TabBar lists the open chat sessions in open order. The active session is
// highlighted; minimized ones are dimmed.
type TabBar struct {
	*tview.TextView
}

// NewTabBar creates an empty tab bar.
func NewTabBar() *TabBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	return &TabBar{TextView: tv}
}

// Update repaints the tabs.
func (tb *TabBar) Update(sessions []chat.Session, activeID string) {
	tb.Clear()
	if len(sessions) == 0 {
		_, _ = fmt.Fprint(tb, " [::d]no open chats[-:-:-]")
		return
	}
	for _, s := range sessions {
		name := s.User.DisplayName()
		switch {
		case s.User.ID == activeID:
			_, _ = fmt.Fprintf(tb, " [::br] %s [-:-:-]", name)
		case s.Minimized:
			_, _ = fmt.Fprintf(tb, " [::d] %s [-:-:-]", name)
		default:
			_, _ = fmt.Fprintf(tb, "  %s ", name)
		}
	}
}

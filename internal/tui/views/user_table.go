package views

import (
	"github.com/rivo/tview"

	"github.com/mushfiqur/botadmin/internal/chat"
)

// UserTable is the roster table on the left of the dashboard.
type UserTable struct {
	*tview.Table
	users      []chat.User
	selectedFn func() (int, int)
}

// NewUserTable creates a new roster table.
func NewUserTable() *UserTable {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Users ")

	ut := &UserTable{Table: table}
	ut.selectedFn = table.GetSelection
	return ut
}

// Update refreshes the table with new data.
func (ut *UserTable) Update(users []chat.User) {
	ut.users = users
	ut.Clear()

	// Header row.
	ut.SetCell(0, 0, tview.NewTableCell(" Name").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	ut.SetCell(0, 1, tview.NewTableCell(" Joined").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	ut.SetCell(0, 2, tview.NewTableCell(" Label").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, u := range users {
		row := i + 1
		name := u.DisplayName()
		if u.IsOnline {
			name = "● " + name
		}
		ut.SetCell(row, 0, tview.NewTableCell(" "+name).SetMaxWidth(30).SetExpansion(2))
		ut.SetCell(row, 1, tview.NewTableCell(" "+u.JoinDate).SetMaxWidth(12).SetExpansion(1))
		ut.SetCell(row, 2, tview.NewTableCell(" "+u.Label).SetMaxWidth(12).SetExpansion(1))
	}
}

// SelectedUser returns the currently selected roster row.
func (ut *UserTable) SelectedUser() (chat.User, bool) {
	row, _ := ut.selectedFn()
	idx := row - 1 // account for header
	if idx >= 0 && idx < len(ut.users) {
		return ut.users[idx], true
	}
	return chat.User{}, false
}

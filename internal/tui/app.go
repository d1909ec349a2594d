// Package tui is the terminal dashboard shell. All domain state lives in
// the chat store, roster manager, and playback controller; the shell only
// renders snapshots and forwards operator input.
package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/mushfiqur/botadmin/internal/bus"
	"github.com/mushfiqur/botadmin/internal/chat"
	"github.com/mushfiqur/botadmin/internal/media"
	"github.com/mushfiqur/botadmin/internal/playback"
	"github.com/mushfiqur/botadmin/internal/roster"
	"github.com/mushfiqur/botadmin/internal/status"
	"github.com/mushfiqur/botadmin/internal/sync"
	"github.com/mushfiqur/botadmin/internal/tui/views"
)

// Deps are the collaborators the shell renders and drives.
type Deps struct {
	Store    *chat.Store
	Engine   *sync.Engine
	Recorder *sync.Recorder
	Playback *playback.Controller
	Roster   *roster.Manager
	Machine  *status.Machine
	Bus      *bus.Bus
	Bases    media.Bases
	Profile  string
	Logger   *zap.Logger
}

// App is the dashboard application shell.
type App struct {
	app   *tview.Application
	pages *tview.Pages
	deps  Deps
	flash *Flash

	statsBar   *views.StatsBar
	userTable  *views.UserTable
	tabBar     *views.TabBar
	chatWindow *views.ChatWindow
	inviteView *views.InviteView
	statusBar  *views.StatusBar
	searchIn   *tview.InputField

	activeID string
	screen   tcell.Screen

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the dashboard shell.
func NewApp(deps Deps) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:        tview.NewApplication(),
		pages:      tview.NewPages(),
		deps:       deps,
		flash:      &Flash{},
		statsBar:   views.NewStatsBar(),
		userTable:  views.NewUserTable(),
		tabBar:     views.NewTabBar(),
		chatWindow: views.NewChatWindow(),
		inviteView: views.NewInviteView(),
		statusBar:  views.NewStatusBar(),
		searchIn:   tview.NewInputField().SetLabel(" / ").SetFieldWidth(0),
		ctx:        ctx,
		cancel:     cancel,
	}

	a.statusBar.SetProfile(deps.Profile)
	a.statusBar.SetStatus(string(deps.Machine.Current()))

	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupCallbacks() {
	a.userTable.SetSelectedFunc(func(row, col int) {
		if u, ok := a.userTable.SelectedUser(); ok {
			a.openChat(u.ID)
		}
	})

	a.chatWindow.Composer.SetOnChange(func(text string) {
		if a.activeID != "" {
			a.deps.Store.SetDraft(a.activeID, text)
		}
	})

	a.chatWindow.Composer.SetOnSend(func(text string) {
		if a.activeID == "" {
			return
		}
		a.deps.Store.ClearNotice(a.activeID)
		a.deps.Engine.Send(a.ctx, a.activeID, text, nil)
		a.render()
	})

	a.searchIn.SetChangedFunc(func(text string) {
		a.deps.Roster.SetSearch(text)
	})
}

func (a *App) setupLayout() {
	left := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.searchIn, 1, 0, false).
		AddItem(a.userTable, 0, 1, true)

	right := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.tabBar, 1, 0, false).
		AddItem(a.chatWindow, 0, 1, false)

	body := tview.NewFlex().
		AddItem(left, 0, 1, true).
		AddItem(right, 0, 2, false)

	a.pages.AddPage("main", body, true, true)
	a.pages.AddPage("invite", a.inviteView, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.statsBar, 1, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)
	a.app.SetInputCapture(a.handleKey)
}

func (a *App) handleKey(event *tcell.EventKey) *tcell.EventKey {
	currentPage, _ := a.pages.GetFrontPage()

	if event.Key() == tcell.KeyEscape {
		switch currentPage {
		case "invite", "broadcast", "direct", "label":
			a.pages.SwitchToPage("main")
			a.app.SetFocus(a.userTable)
			return nil
		}
		if a.app.GetFocus() == a.searchIn {
			a.searchIn.SetText("")
			a.app.SetFocus(a.userTable)
			return nil
		}
		a.app.SetFocus(a.userTable)
		return nil
	}

	// Let text input widgets handle all keys normally.
	if _, ok := a.app.GetFocus().(*tview.InputField); ok {
		return event
	}

	if event.Key() == tcell.KeyTab {
		a.cycleSession(1)
		return nil
	}
	if event.Key() == tcell.KeyBacktab {
		a.cycleSession(-1)
		return nil
	}

	if event.Key() != tcell.KeyRune {
		return event
	}

	switch event.Rune() {
	case 'q':
		a.Stop()
	case 'i':
		if a.activeID != "" {
			a.app.SetFocus(a.chatWindow.Composer.InputField)
		}
	case '/':
		a.app.SetFocus(a.searchIn)
	case 'm':
		if a.activeID != "" {
			a.deps.Store.ToggleMinimize(a.activeID)
		}
	case 'x':
		a.closeActive()
	case 'r':
		a.toggleRecording()
	case 'p':
		a.toggleAudio()
	case 'v':
		a.toggleVideo()
	case 'b':
		a.showBroadcast()
	case 'd':
		a.showDirectSend()
	case 'l':
		a.showLabelPicker()
	case 'n':
		a.showInvite()
	default:
		return event
	}
	return nil
}

func (a *App) openChat(userID string) {
	a.activeID = userID
	a.deps.Engine.OpenSession(a.ctx, userID)
	a.app.SetFocus(a.chatWindow.Composer.InputField)
	a.render()
}

func (a *App) closeActive() {
	if a.activeID == "" {
		return
	}
	closed := a.activeID
	a.deps.Engine.CloseSession(closed)
	a.deps.Playback.DropSession(closed)

	a.activeID = ""
	if ids := a.deps.Store.OpenIDs(); len(ids) > 0 {
		a.activeID = ids[len(ids)-1]
	}
	if a.activeID == "" {
		a.app.SetFocus(a.userTable)
	}
	a.render()
}

func (a *App) cycleSession(dir int) {
	ids := a.deps.Store.OpenIDs()
	if len(ids) == 0 {
		return
	}
	idx := 0
	for i, id := range ids {
		if id == a.activeID {
			idx = (i + dir + len(ids)) % len(ids)
			break
		}
	}
	a.activeID = ids[idx]
	a.render()
}

func (a *App) toggleRecording() {
	if a.activeID == "" {
		return
	}
	if _, busy := a.deps.Recorder.Recording(); busy {
		go a.deps.Recorder.StopRecording(a.ctx)
		return
	}
	userID := a.activeID
	go func() {
		if err := a.deps.Recorder.StartRecording(a.ctx, userID); err != nil {
			a.flash.Set("Recording unavailable", 5*time.Second)
			a.redraw()
		}
	}()
}

// toggleAudio plays or pauses the most recent audio message in the active
// session.
func (a *App) toggleAudio() {
	snap, ok := a.snapshot()
	if !ok {
		return
	}
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		m := snap.Messages[i]
		if m.Kind != chat.KindAudio || !m.Resolvable {
			continue
		}
		key := playback.Key{SessionID: snap.User.ID, MessageKey: m.Ref}
		url := media.Resolve(m.Ref, a.deps.Bases)
		go func() {
			if err := a.deps.Playback.Toggle(a.ctx, key, url); err != nil {
				a.flash.Set("Playback failed", 5*time.Second)
				a.redraw()
			}
		}()
		return
	}
}

// toggleVideo flips inline playback of the most recent video message.
func (a *App) toggleVideo() {
	snap, ok := a.snapshot()
	if !ok {
		return
	}
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		m := snap.Messages[i]
		if m.Kind != chat.KindVideo || !m.Resolvable {
			continue
		}
		a.deps.Playback.ToggleVideo(playback.Key{SessionID: snap.User.ID, MessageKey: m.Ref})
		return
	}
}

func (a *App) snapshot() (chat.Session, bool) {
	if a.activeID == "" {
		return chat.Session{}, false
	}
	return a.deps.Store.Snapshot(a.activeID)
}

func (a *App) showBroadcast() {
	form := tview.NewForm()
	form.AddInputField("Message", "", 0, nil, nil).
		AddButton("Send to all", func() {
			text := form.GetFormItem(0).(*tview.InputField).GetText()
			go func() {
				if err := a.deps.Roster.Broadcast(a.ctx, text); err != nil {
					a.flash.Set("Broadcast failed: "+err.Error(), 5*time.Second)
				} else {
					a.flash.Set("Broadcast sent", 3*time.Second)
				}
				a.redraw()
			}()
			a.dismiss("broadcast")
		}).
		AddButton("Cancel", func() { a.dismiss("broadcast") })
	form.SetBorder(true).SetTitle(" Broadcast ")

	a.showModal("broadcast", form, 60, 7)
}

func (a *App) showDirectSend() {
	user, ok := a.userTable.SelectedUser()
	if !ok {
		return
	}
	form := tview.NewForm()
	form.AddInputField("Message", "", 0, nil, nil).
		AddButton("Send", func() {
			text := form.GetFormItem(0).(*tview.InputField).GetText()
			go func() {
				if err := a.deps.Roster.DirectSend(a.ctx, user.ID, text); err != nil {
					a.flash.Set("Send failed: "+err.Error(), 5*time.Second)
				} else {
					a.flash.Set("Sent to "+user.DisplayName(), 3*time.Second)
				}
				a.redraw()
			}()
			a.dismiss("direct")
		}).
		AddButton("Cancel", func() { a.dismiss("direct") })
	form.SetBorder(true).SetTitle(" Message " + user.DisplayName() + " ")

	a.showModal("direct", form, 60, 7)
}

func (a *App) showLabelPicker() {
	user, ok := a.userTable.SelectedUser()
	if !ok {
		return
	}
	list := tview.NewList()
	for _, label := range roster.Labels {
		label := label
		list.AddItem(label, "", 0, func() {
			go func() {
				if err := a.deps.Roster.SetLabel(a.ctx, user.ID, label); err != nil {
					a.flash.Set("Label failed: "+err.Error(), 5*time.Second)
					a.redraw()
				}
			}()
			a.dismiss("label")
		})
	}
	list.SetBorder(true).SetTitle(" Label " + user.DisplayName() + " ")

	a.showModal("label", list, 40, len(roster.Labels)*2+2)
}

func (a *App) showInvite() {
	a.inviteView.ShowMessage("Fetching invite link...")
	a.pages.SwitchToPage("invite")
	go func() {
		link, err := a.deps.Roster.InviteLink(a.ctx)
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.inviteView.ShowMessage("Invite link unavailable: " + err.Error())
				return
			}
			a.inviteView.ShowLink(link)
		})
	}()
}

func (a *App) showModal(name string, content tview.Primitive, width, height int) {
	modal := tview.NewFlex().
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().SetDirection(tview.FlexRow).
			AddItem(nil, 0, 1, false).
			AddItem(content, height, 0, true).
			AddItem(nil, 0, 1, false), width, 0, true).
		AddItem(nil, 0, 1, false)

	a.pages.AddPage(name, modal, true, true)
	a.app.SetFocus(content)
}

func (a *App) dismiss(name string) {
	a.pages.RemovePage(name)
	a.app.SetFocus(a.userTable)
}

// Run starts the dashboard and blocks until it exits.
func (a *App) Run() error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	a.screen = screen
	a.app.SetScreen(screen)

	go a.eventLoop()
	go a.clockLoop()

	a.render()
	return a.app.Run()
}

// eventLoop repaints on every domain event and rings the terminal bell
// when a remote message arrives.
func (a *App) eventLoop() {
	ch, unsub := a.deps.Bus.Subscribe("", 512)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			if evt.Kind == "push.new_message" {
				if a.screen != nil {
					a.screen.Beep()
				}
				a.flash.Set("New message", 3*time.Second)
			}
			if evt.Kind == "conn.status_changed" {
				if change, ok := evt.Payload.(status.StatusChange); ok {
					a.statusBar.SetStatus(string(change.To))
				}
			}
			a.redraw()
		case <-a.ctx.Done():
			return
		}
	}
}

// clockLoop keeps the status bar clock and flash expiry fresh.
func (a *App) clockLoop() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			a.redraw()
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) redraw() {
	a.app.QueueUpdateDraw(a.render)
}

func (a *App) render() {
	stats, ok := a.deps.Roster.Stats()
	a.statsBar.Update(stats, ok)
	a.userTable.Update(a.deps.Roster.Filtered())

	sessions := a.deps.Store.Sessions()
	if a.activeID == "" && len(sessions) > 0 {
		a.activeID = sessions[0].User.ID
	}
	a.tabBar.Update(sessions, a.activeID)

	if snap, ok := a.snapshot(); ok {
		recording := ""
		if userID, busy := a.deps.Recorder.Recording(); busy && userID == snap.User.ID {
			recording = views.FormatElapsed(a.deps.Recorder.Elapsed())
		}
		a.chatWindow.Render(snap, a.deps.Bases, recording)
	}

	a.statusBar.SetFlash(a.flash.Get())
}

// Stop gracefully shuts down the dashboard.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

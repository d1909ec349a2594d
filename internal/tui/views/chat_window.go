package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/mushfiqur/botadmin/internal/chat"
	"github.com/mushfiqur/botadmin/internal/media"
)

// ChatWindow renders one open chat session: message log, notice line, and
// composer. The same widget is re-rendered for whichever session is
// active; session state itself lives in the store.
type ChatWindow struct {
	*tview.Flex
	msgView  *tview.TextView
	notice   *tview.TextView
	Composer *Composer
}

// NewChatWindow creates an empty chat window.
func NewChatWindow() *ChatWindow {
	msgView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	msgView.SetBorder(true).SetTitle(" Chat ")

	notice := tview.NewTextView().SetDynamicColors(true)
	composer := NewComposer()

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(msgView, 0, 1, false).
		AddItem(notice, 1, 0, false).
		AddItem(composer, 1, 0, true)

	return &ChatWindow{
		Flex:     flex,
		msgView:  msgView,
		notice:   notice,
		Composer: composer,
	}
}

// Render repaints the window from a session snapshot.
func (w *ChatWindow) Render(s chat.Session, bases media.Bases, recording string) {
	title := fmt.Sprintf(" %s ", s.User.DisplayName())
	if s.State == chat.StateLoading {
		title = fmt.Sprintf(" %s [::d](loading)[-:-:-] ", s.User.DisplayName())
	}
	w.msgView.SetTitle(title)

	w.msgView.Clear()
	var lastDay string
	for _, m := range s.Messages {
		if m.Timestamp != nil {
			day := m.Timestamp.Format("2006-01-02")
			if day != lastDay {
				_, _ = fmt.Fprintf(w.msgView, "[::d]--- %s ---[-:-:-]\n", day)
				lastDay = day
			}
		}
		_, _ = fmt.Fprint(w.msgView, formatMessage(m, bases))
	}
	w.msgView.ScrollToEnd()

	w.notice.Clear()
	switch {
	case recording != "":
		_, _ = fmt.Fprintf(w.notice, " [red]● recording %s[-]", recording)
	case s.Notice != "":
		_, _ = fmt.Fprintf(w.notice, " [yellow]%s[-]", s.Notice)
	}

	if w.Composer.GetText() != s.Draft {
		w.Composer.SetText(s.Draft)
	}
}

func formatMessage(m chat.Message, bases media.Bases) string {
	sender := senderLabel(m)
	ts := ""
	if m.Timestamp != nil {
		ts = m.Timestamp.Format("15:04")
	}

	var body string
	switch m.Kind {
	case chat.KindText:
		body = m.Text
	case chat.KindImage:
		body = mediaLine("image", m, bases)
		if m.IsAnimated {
			body = mediaLine("gif", m, bases)
		}
	case chat.KindVideo:
		body = mediaLine("video", m, bases)
	case chat.KindAudio:
		kind := m.AudioHint
		if kind == "" {
			kind = "audio"
		}
		body = mediaLine(kind, m, bases)
	case chat.KindFile:
		body = mediaLine("file", m, bases)
	}

	if m.Pending {
		return fmt.Sprintf("[::b]%s[-:-:-] [::d]%s · sending...[-:-:-]\n%s\n\n", sender, ts, body)
	}
	if m.Sender == chat.SenderSystem {
		return fmt.Sprintf("[::d]· %s[-:-:-]\n\n", body)
	}
	return fmt.Sprintf("[::b]%s[-:-:-] [::d]%s[-:-:-]\n%s\n\n", sender, ts, body)
}

func senderLabel(m chat.Message) string {
	switch m.Sender {
	case chat.SenderOperator:
		return "You"
	case chat.SenderSystem:
		return "·"
	default:
		return "User"
	}
}

func mediaLine(kind string, m chat.Message, bases media.Bases) string {
	if !m.Resolvable {
		return fmt.Sprintf("[::d](%s not available)[-:-:-]", kind)
	}
	return fmt.Sprintf("[%s] %s", kind, media.Resolve(m.Ref, bases))
}

// FormatElapsed renders a recording duration as m:ss.
func FormatElapsed(d time.Duration) string {
	secs := int(d.Seconds())
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mushfiqur/botadmin/internal/backend"
	"github.com/mushfiqur/botadmin/internal/bus"
)

// MaxRecordSeconds is the voice note ceiling. Recording stops itself at
// this mark and the clip is sent as-is.
const MaxRecordSeconds = 60

// ErrCaptureUnavailable means no usable capture device was found.
var ErrCaptureUnavailable = errors.New("audio capture unavailable")

// Device is an audio capture source. Start begins capturing; Stop ends it
// and returns the encoded clip plus its file extension.
type Device interface {
	Start(ctx context.Context) error
	Stop() (clip []byte, ext string, err error)
}

// Recorder drives voice note capture for one chat at a time. Elapsed time
// ticks out on the bus every second so the composer can show it.
type Recorder struct {
	device Device
	engine *Engine
	bus    *bus.Bus
	logger *zap.Logger

	tick    time.Duration
	ceiling time.Duration

	mu      chan struct{}
	userID  string
	started time.Time
	cancel  context.CancelFunc
}

func NewRecorder(device Device, engine *Engine, b *bus.Bus, logger *zap.Logger) *Recorder {
	r := &Recorder{
		device:  device,
		engine:  engine,
		bus:     b,
		logger:  logger,
		tick:    time.Second,
		ceiling: MaxRecordSeconds * time.Second,
		mu:      make(chan struct{}, 1),
	}
	r.mu <- struct{}{}
	return r
}

// StartRecording begins capturing a voice note for the given chat. A
// denied or missing capture device surfaces as a session notice and the
// recorder stays idle.
func (r *Recorder) StartRecording(ctx context.Context, userID string) error {
	<-r.mu
	if r.userID != "" {
		r.mu <- struct{}{}
		return fmt.Errorf("already recording for %s", r.userID)
	}

	if err := r.device.Start(ctx); err != nil {
		r.mu <- struct{}{}
		r.logger.Warn("capture start failed", zap.Error(err))
		r.engine.store.SetNotice(userID, "Microphone unavailable")
		return err
	}

	tickCtx, cancel := context.WithCancel(ctx)
	r.userID = userID
	r.started = time.Now()
	r.cancel = cancel
	r.mu <- struct{}{}

	// tickCtx only stops the ticker; the send after an auto-stop still
	// needs the caller's context.
	go r.tickLoop(ctx, tickCtx, userID)
	return nil
}

// StopRecording ends capture and sends the clip as an attachment-only
// message: no text, so nothing is inserted optimistically.
func (r *Recorder) StopRecording(ctx context.Context) {
	<-r.mu
	userID := r.userID
	if userID == "" {
		r.mu <- struct{}{}
		return
	}
	r.userID = ""
	r.cancel()
	r.cancel = nil
	r.mu <- struct{}{}

	clip, ext, err := r.device.Stop()
	if err != nil {
		r.logger.Warn("capture stop failed", zap.Error(err))
		r.engine.store.SetNotice(userID, "Recording failed")
		return
	}
	if len(clip) == 0 {
		return
	}

	name := fmt.Sprintf("voice-%d.%s", time.Now().Unix(), ext)
	r.engine.Send(ctx, userID, "", []backend.Attachment{{
		Name:        name,
		ContentType: audioContentType(ext),
		Data:        clip,
	}})
}

// Recording reports the chat being recorded for, if any.
func (r *Recorder) Recording() (string, bool) {
	<-r.mu
	userID := r.userID
	r.mu <- struct{}{}
	return userID, userID != ""
}

// Elapsed returns how long the current recording has run.
func (r *Recorder) Elapsed() time.Duration {
	<-r.mu
	defer func() { r.mu <- struct{}{} }()
	if r.userID == "" {
		return 0
	}
	return time.Since(r.started)
}

func (r *Recorder) tickLoop(sendCtx, tickCtx context.Context, userID string) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			elapsed := r.Elapsed()
			r.bus.Publish(bus.Event{
				Kind:      "chat.recording_tick",
				Timestamp: time.Now(),
				Payload:   userID,
			})
			if elapsed >= r.ceiling {
				r.StopRecording(sendCtx)
				return
			}
		case <-tickCtx.Done():
			return
		}
	}
}

func audioContentType(ext string) string {
	switch ext {
	case "m4a":
		return "audio/mp4"
	case "mp3":
		return "audio/mpeg"
	case "ogg":
		return "audio/ogg"
	case "webm":
		return "audio/webm"
	default:
		return "audio/wav"
	}
}

// Package playback tracks which media messages are currently playing.
//
// At most one audio clip plays at a time across every open session;
// starting a second stops the first. Inline video toggles are independent
// per message and unaffected by audio.
package playback

import (
	"context"
	"sync"
)

// Key identifies one media message within one session.
type Key struct {
	SessionID  string
	MessageKey string
}

// AudioState is a snapshot of the single audio slot.
type AudioState struct {
	Key      Key
	Playing  bool
	Progress float64
	Duration float64
}

// Controller owns the process-wide audio slot and per-message video flags.
type Controller struct {
	mu     sync.Mutex
	loader Loader

	audio   *AudioState
	videoOn map[Key]bool
	// durations caches reported clip lengths so progress survives pauses.
	durations map[Key]float64
}

func NewController(loader Loader) *Controller {
	return &Controller{
		loader:    loader,
		videoOn:   make(map[Key]bool),
		durations: make(map[Key]float64),
	}
}

// Play claims the audio slot for the given message. Whatever was playing
// before is stopped first, even if loading the new clip then fails.
func (c *Controller) Play(ctx context.Context, key Key, url string) error {
	c.mu.Lock()
	c.audio = &AudioState{Key: key, Duration: c.durations[key]}
	c.mu.Unlock()

	if err := c.loader.Load(ctx, url); err != nil {
		c.mu.Lock()
		if c.audio != nil && c.audio.Key == key {
			c.audio = nil
		}
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if c.audio != nil && c.audio.Key == key {
		c.audio.Playing = true
	}
	c.mu.Unlock()
	return nil
}

// Pause halts the current clip without releasing the slot; progress is kept.
func (c *Controller) Pause() {
	c.mu.Lock()
	if c.audio != nil {
		c.audio.Playing = false
	}
	c.mu.Unlock()
}

// Toggle plays the message if it is not the active clip, resumes it if
// paused, and pauses it if playing.
func (c *Controller) Toggle(ctx context.Context, key Key, url string) error {
	c.mu.Lock()
	if c.audio != nil && c.audio.Key == key {
		c.audio.Playing = !c.audio.Playing
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()
	return c.Play(ctx, key, url)
}

// OnProgress records playback position for the active clip. Duration is
// cached per message so a resume can restore the progress bar before the
// player reports again.
func (c *Controller) OnProgress(key Key, current, duration float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if duration > 0 {
		c.durations[key] = duration
	}
	if c.audio == nil || c.audio.Key != key {
		return
	}
	c.audio.Duration = duration
	if duration > 0 {
		c.audio.Progress = current / duration * 100
	}
}

// OnEnded releases the slot when the active clip finishes.
func (c *Controller) OnEnded(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.audio != nil && c.audio.Key == key {
		c.audio = nil
	}
}

// Audio returns the current audio slot state, if any clip holds it.
func (c *Controller) Audio() (AudioState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.audio == nil {
		return AudioState{}, false
	}
	return *c.audio, true
}

// ToggleVideo flips inline playback for one video message.
func (c *Controller) ToggleVideo(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.videoOn[key] = !c.videoOn[key]
	return c.videoOn[key]
}

// VideoPlaying reports whether the given video message is playing inline.
func (c *Controller) VideoPlaying(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.videoOn[key]
}

// DropSession clears all playback state tied to a closed session.
func (c *Controller) DropSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.audio != nil && c.audio.Key.SessionID == sessionID {
		c.audio = nil
	}
	for k := range c.videoOn {
		if k.SessionID == sessionID {
			delete(c.videoOn, k)
		}
	}
	for k := range c.durations {
		if k.SessionID == sessionID {
			delete(c.durations, k)
		}
	}
}

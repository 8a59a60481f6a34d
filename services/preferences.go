package services

import "sync/atomic"

// Preferences holds the conseiller's sound notification setting. It is read
// by the chat manager on every snapshot.
type Preferences struct {
	sound atomic.Bool
}

// NewPreferences creates preferences with the given default.
func NewPreferences(sound bool) *Preferences {
	p := &Preferences{}
	p.sound.Store(sound)
	return p
}

// SoundNotificationsEnabled implements chat.Preferences.
func (p *Preferences) SoundNotificationsEnabled() bool {
	return p.sound.Load()
}

// SetSoundNotifications updates the setting.
func (p *Preferences) SetSoundNotifications(enabled bool) {
	p.sound.Store(enabled)
}

package signal

import (
	"sync"
	"time"
)

// RemotePlayer mirrors the browser's video element. The browser reports
// samples with tick messages; between samples a playing video is assumed to
// advance in real time. Corrections are forwarded to the browser as seek and
// set_playing commands.
type RemotePlayer struct {
	mu          sync.Mutex
	currentTime float64
	isPlaying   bool
	sampledAt   time.Time
	now         func() time.Time

	commands commandSink
}

type commandSink interface {
	sendCommand(msgType string, payload interface{})
}

func NewRemotePlayer(commands commandSink) *RemotePlayer {
	return &RemotePlayer{
		commands: commands,
		now:      time.Now,
	}
}

// Report records a sample from the browser.
func (p *RemotePlayer) Report(sample TickPayload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.currentTime = sample.CurrentTime
	p.isPlaying = sample.IsPlaying
	p.sampledAt = p.now()
}

func (p *RemotePlayer) GetCurrentTime() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.isPlaying || p.sampledAt.IsZero() {
		return p.currentTime
	}
	return p.currentTime + p.now().Sub(p.sampledAt).Seconds()
}

func (p *RemotePlayer) GetIsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isPlaying
}

func (p *RemotePlayer) Seek(seconds float64) {
	p.mu.Lock()
	p.currentTime = seconds
	p.sampledAt = p.now()
	p.mu.Unlock()

	p.commands.sendCommand(TypeSeek, SeekPayload{Position: seconds})
}

func (p *RemotePlayer) SetPlaying(playing bool) {
	p.mu.Lock()
	if p.isPlaying && !playing && !p.sampledAt.IsZero() {
		// freeze the extrapolated position
		p.currentTime += p.now().Sub(p.sampledAt).Seconds()
	}
	p.isPlaying = playing
	p.sampledAt = p.now()
	p.mu.Unlock()

	p.commands.sendCommand(TypeSetPlaying, SetPlayingPayload{Playing: playing})
}

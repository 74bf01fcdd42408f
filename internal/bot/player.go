package bot

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"

	"github.com/Tonk1e/RickBot/internal/plugins/music"
)

const (
	audioChannels   = 2
	audioSampleRate = 48000
	audioFrameSize  = 960 // 20ms at 48kHz
)

// AudioFactory builds players that pipe ffmpeg PCM output through an Opus
// encoder into the guild's voice connection.
type AudioFactory struct {
	Session *discordgo.Session
	Log     *slog.Logger
}

// CreatePlayer prepares a player for the track. It fails when the bot has no
// voice connection in the guild; the coordinator surfaces that to the user.
func (f *AudioFactory) CreatePlayer(_ context.Context, guildID string, track music.Track, onComplete func(error)) (music.Player, error) {
	f.Session.RLock()
	vc, ok := f.Session.VoiceConnections[guildID]
	f.Session.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no voice connection in guild %s", guildID)
	}

	return &audioPlayer{
		url:        track.URL,
		vc:         vc,
		volume:     1.0,
		stop:       make(chan struct{}),
		onComplete: onComplete,
		log:        f.Log,
	}, nil
}

type audioPlayer struct {
	url string
	vc  *discordgo.VoiceConnection
	log *slog.Logger

	mu     sync.Mutex
	volume float64

	stop       chan struct{}
	stopOnce   sync.Once
	onComplete func(error)
	doneOnce   sync.Once
}

func (p *audioPlayer) SetVolume(v float64) {
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
}

// Start spawns ffmpeg and begins streaming. Setup failures are returned
// synchronously; everything after that reaches the completion callback.
func (p *audioPlayer) Start() error {
	cmd := exec.Command("ffmpeg",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "5",
		"-i", p.url,
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", audioSampleRate),
		"-ac", fmt.Sprintf("%d", audioChannels),
		"-loglevel", "warning",
		"pipe:1",
	)

	pcm, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	go p.stream(cmd, pcm)
	return nil
}

// Stop interrupts streaming. The completion callback still fires exactly
// once.
func (p *audioPlayer) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

func (p *audioPlayer) stream(cmd *exec.Cmd, pcm io.ReadCloser) {
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		_ = pcm.Close()
	}()

	encoder, err := gopus.NewEncoder(audioSampleRate, audioChannels, gopus.Audio)
	if err != nil {
		p.finish(fmt.Errorf("create opus encoder: %w", err))
		return
	}

	if err := p.vc.Speaking(true); err != nil {
		p.log.Warn("failed to set speaking state", "error", err)
	}
	defer func() {
		if err := p.vc.Speaking(false); err != nil {
			p.log.Warn("failed to clear speaking state", "error", err)
		}
	}()

	pcmBuf := make([]byte, audioFrameSize*audioChannels*2)
	intBuf := make([]int16, audioFrameSize*audioChannels)

	for {
		select {
		case <-p.stop:
			p.finish(nil)
			return
		default:
		}

		if _, err := io.ReadFull(pcm, pcmBuf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				p.finish(nil)
			} else {
				p.finish(fmt.Errorf("read pcm: %w", err))
			}
			return
		}

		p.mu.Lock()
		vol := p.volume
		p.mu.Unlock()

		for i := range intBuf {
			sample := int16(binary.LittleEndian.Uint16(pcmBuf[i*2 : i*2+2]))
			intBuf[i] = int16(float64(sample) * vol)
		}

		opus, err := encoder.Encode(intBuf, audioFrameSize, len(pcmBuf))
		if err != nil {
			p.finish(fmt.Errorf("encode opus frame: %w", err))
			return
		}

		select {
		case p.vc.OpusSend <- opus:
		case <-p.stop:
			p.finish(nil)
			return
		}
	}
}

func (p *audioPlayer) finish(err error) {
	p.doneOnce.Do(func() { p.onComplete(err) })
}

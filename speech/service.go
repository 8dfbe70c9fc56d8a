// Package speech reads text aloud. A remote voice is tried first; when it
// cannot produce or play audio the local system voice takes over.
package speech

import (
	"context"
	"errors"
	"sync"
	"time"

	"agriaid/config"
	"agriaid/crop"
	"agriaid/logger"
)

type State int

const (
	Idle State = iota
	Speaking
)

func (s State) String() string {
	if s == Speaking {
		return "speaking"
	}
	return "idle"
}

// Synthesizer renders text as encoded audio through a remote voice.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Player plays encoded audio and blocks until it ends or ctx is cancelled.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

// LocalVoice speaks text with the device voice and blocks until done.
type LocalVoice interface {
	Say(ctx context.Context, text string) error
}

var errEmptyAudio = errors.New("remote voice returned no audio")

// Service is the Idle/Speaking state machine. At most one utterance is
// active at a time; Stop silences it and no callback fires afterwards.
type Service struct {
	Remote  Synthesizer
	Player  Player
	Local   LocalVoice
	Log     logger.Logger
	Timeout time.Duration

	// OnState, when set, observes every transition. It runs with the
	// service lock held and must not call back into the Service.
	OnState func(State)

	mu     sync.Mutex
	state  State
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(remote Synthesizer, player Player, local LocalVoice, log logger.Logger, timeout time.Duration) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{Remote: remote, Player: player, Local: local, Log: log, Timeout: timeout}
}

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Supported reports whether a local fallback voice is available.
func (s *Service) Supported() bool { return s.Local != nil }

// Speak starts reading text aloud and returns a channel closed when the
// utterance ends. It returns nil and does nothing while already speaking.
func (s *Service) Speak(ctx context.Context, text string) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Speaking {
		return nil
	}
	s.stopLocked()
	s.gen++
	gen := s.gen
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.setStateLocked(Speaking)
	go s.run(runCtx, gen, text)
	return done
}

// Stop silences any active audio and settles to Idle. Safe to call repeatedly.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

// Close is Stop for teardown paths.
func (s *Service) Close() { s.Stop() }

func (s *Service) stopLocked() {
	s.gen++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.setStateLocked(Idle)
}

func (s *Service) setStateLocked(st State) {
	if s.state == st {
		return
	}
	s.state = st
	if s.OnState != nil {
		s.OnState(st)
	}
}

// finish ends the utterance identified by gen unless Stop already did.
func (s *Service) finish(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return
	}
	s.stopLocked()
}

func (s *Service) run(ctx context.Context, gen uint64, text string) {
	defer s.finish(gen)

	audio, err := s.synthesize(ctx, text)
	if err == nil {
		err = s.play(ctx, audio)
		if err == nil || ctx.Err() != nil {
			return
		}
		s.Log.Warnf(ctx, "audio playback failed, using local voice: %v", err)
	} else {
		if ctx.Err() != nil {
			return
		}
		s.Log.Warnf(ctx, "remote voice failed, using local voice: %v", err)
	}

	if s.Local == nil {
		return
	}
	if err := s.Local.Say(ctx, text); err != nil && ctx.Err() == nil {
		s.Log.Warnf(ctx, "local voice failed: %v", err)
	}
}

func (s *Service) synthesize(ctx context.Context, text string) ([]byte, error) {
	if s.Remote == nil {
		return nil, &crop.SpeechError{Err: errors.New("no remote voice configured")}
	}
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}
	audio, err := s.Remote.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, &crop.SpeechError{Err: errEmptyAudio}
	}
	return audio, nil
}

func (s *Service) play(ctx context.Context, audio []byte) error {
	if s.Player == nil {
		return errors.New("no audio player available")
	}
	return s.Player.Play(ctx, audio)
}

// FromConfig wires the remote voice, the audio player and the device voice
// found on this machine. The remote voice is skipped when no key is set.
func FromConfig(cfg config.SpeechConfig, log logger.Logger) *Service {
	var remote Synthesizer
	if cfg.ElevenLabsAPIKey != "" {
		remote = NewElevenLabs(cfg.ElevenLabsAPIKey, cfg.VoiceID, cfg.ModelID)
	}
	return NewService(remote, DetectPlayer(cfg.PlayerCommand), DetectLocalVoice(cfg.LocalCommand), log, cfg.Timeout)
}

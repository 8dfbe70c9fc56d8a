package speech

import "context"

// CommandPlayer pipes audio into a player program.
type CommandPlayer struct {
	Cmd Command
}

func (p *CommandPlayer) Play(ctx context.Context, audio []byte) error {
	return p.Cmd.run(ctx, audio)
}

// DetectPlayer returns the configured player command, or the first known one
// on PATH reading MPEG audio from stdin. It returns nil when none is found.
func DetectPlayer(configured string) Player {
	if c, ok := ParseCommand(configured); ok {
		return &CommandPlayer{Cmd: c}
	}
	candidates := []Command{
		{Name: "ffplay", Args: []string{"-nodisp", "-autoexit", "-loglevel", "quiet", "-"}},
		{Name: "mpg123", Args: []string{"-q", "-"}},
		{Name: "mpv", Args: []string{"--no-video", "--really-quiet", "-"}},
	}
	if c, ok := firstAvailable(candidates); ok {
		return &CommandPlayer{Cmd: c}
	}
	return nil
}

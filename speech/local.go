package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// Command runs an external program. Text for a voice command is appended as
// the last argument; audio for a player command is written to stdin.
type Command struct {
	Name string
	Args []string
}

// ParseCommand splits a command line such as "espeak-ng -s 150".
func ParseCommand(line string) (Command, bool) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return Command{}, false
	}
	return Command{Name: parts[0], Args: parts[1:]}, true
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

func (c Command) run(ctx context.Context, stdin []byte, extra ...string) error {
	args := append(append([]string{}, c.Args...), extra...)
	cmd := exec.CommandContext(ctx, c.Name, args...)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%s: %w: %s", c.Name, err, msg)
		}
		return fmt.Errorf("%s: %w", c.Name, err)
	}
	return nil
}

// lookPath is swapped in tests.
var lookPath = exec.LookPath

func firstAvailable(candidates []Command) (Command, bool) {
	for _, c := range candidates {
		if _, err := lookPath(c.Name); err == nil {
			return c, true
		}
	}
	return Command{}, false
}

// SystemVoice is the device voice backed by a TTS program.
type SystemVoice struct {
	Cmd Command
}

func (v *SystemVoice) Say(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return errors.New("nothing to say")
	}
	return v.Cmd.run(ctx, nil, text)
}

// DetectLocalVoice returns the configured TTS command, or the first known
// one on PATH. It returns nil when the device has no voice.
func DetectLocalVoice(configured string) LocalVoice {
	if c, ok := ParseCommand(configured); ok {
		return &SystemVoice{Cmd: c}
	}
	candidates := []Command{{Name: "espeak-ng"}, {Name: "espeak"}, {Name: "spd-say", Args: []string{"--wait"}}}
	if runtime.GOOS == "darwin" {
		candidates = append([]Command{{Name: "say"}}, candidates...)
	}
	if c, ok := firstAvailable(candidates); ok {
		return &SystemVoice{Cmd: c}
	}
	return nil
}

package speech

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"

	"archon/internal/logging"
)

// ExecPlayer plays audio by piping it to an external command (mpv,
// ffplay, aplay). The command must read audio from stdin.
type ExecPlayer struct {
	command string
	args    []string

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewExecPlayer builds a player around the given command line. When
// command is empty the first playback tool found on PATH is used.
func NewExecPlayer(command string, args ...string) *ExecPlayer {
	if command == "" {
		command, args = detectPlayer()
	}
	return &ExecPlayer{command: command, args: args}
}

// Available reports whether a playback command was resolved.
func (p *ExecPlayer) Available() bool {
	return p.command != ""
}

// Play streams the audio to the playback command and waits for it to
// finish.
func (p *ExecPlayer) Play(ctx context.Context, audio []byte) error {
	if p.command == "" {
		logging.SpeechWarn("no playback command available, dropping %d bytes", len(audio))
		return nil
	}

	// A temp file keeps the command line simple across players; mpv
	// and ffplay both accept a path argument.
	tmp, err := os.CreateTemp("", "archon-tts-*.mp3")
	if err != nil {
		return err
	}
	path := tmp.Name()
	defer os.Remove(path)
	if _, err := tmp.Write(audio); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, p.command, append(p.args, path)...)
	p.mu.Lock()
	p.cmd = cmd
	p.mu.Unlock()

	err = cmd.Run()

	p.mu.Lock()
	p.cmd = nil
	p.mu.Unlock()
	return err
}

// Stop kills any in-progress playback.
func (p *ExecPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
}

// detectPlayer probes PATH for a usable audio player.
func detectPlayer() (string, []string) {
	candidates := []struct {
		command string
		args    []string
	}{
		{"mpv", []string{"--no-terminal", "--no-video"}},
		{"ffplay", []string{"-nodisp", "-autoexit", "-loglevel", "quiet"}},
		{"afplay", nil},
	}
	for _, c := range candidates {
		if path, err := exec.LookPath(c.command); err == nil {
			return filepath.Base(path), c.args
		}
	}
	return "", nil
}

// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/tombee/hearth/internal/log"
)

// Screen drives GNU screen.
type Screen struct {
	binary  string
	wrapper []string
	logger  *slog.Logger
}

// NewScreen returns a Screen that runs binary (default "screen"). When
// wrapper is non-empty every invocation is prefixed with it, e.g. ["wsl"].
func NewScreen(binary string, wrapper []string, logger *slog.Logger) *Screen {
	if binary == "" {
		binary = "screen"
	}
	return &Screen{
		binary:  binary,
		wrapper: wrapper,
		logger:  log.WithComponent(logger, "screen"),
	}
}

func (s *Screen) command(ctx context.Context, args ...string) *exec.Cmd {
	argv := append([]string{}, s.wrapper...)
	argv = append(argv, s.binary)
	argv = append(argv, args...)
	log.Trace(s.logger, "exec", slog.String("argv", strings.Join(argv, " ")))
	return exec.CommandContext(ctx, argv[0], argv[1:]...)
}

// List runs "screen -ls". screen exits non-zero when there are no sessions,
// so the exit status is ignored and only a missing binary is an error.
func (s *Screen) List(ctx context.Context) (string, error) {
	var stdout bytes.Buffer
	cmd := s.command(ctx, "-ls")
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return "", classify(err)
		}
	}
	return stdout.String(), nil
}

// Launch starts a detached, logged session running spec.Command.
func (s *Screen) Launch(ctx context.Context, spec LaunchSpec) error {
	shell := spec.Shell
	if shell == "" {
		shell = "bash"
	}
	cmd := s.command(ctx,
		"-L", "-Logfile", spec.LogFile,
		"-S", spec.Session,
		"-dm", shell, "-c", spec.Command)
	cmd.Dir = spec.Dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("launching session %s: %w%s", spec.Session, classify(err), detail(out))
	}
	return nil
}

// Send stuffs text and a newline into window 0 of the session.
func (s *Screen) Send(ctx context.Context, session, text string) error {
	out, err := s.command(ctx, "-S", session, "-p", "0", "-X", "stuff", text+"\n").CombinedOutput()
	if err != nil {
		return fmt.Errorf("sending to session %s: %w%s", session, classifyOutput(err, out), detail(out))
	}
	return nil
}

// Quit terminates the session.
func (s *Screen) Quit(ctx context.Context, session string) error {
	out, err := s.command(ctx, "-S", session, "-X", "quit").CombinedOutput()
	if err != nil {
		return fmt.Errorf("quitting session %s: %w%s", session, classifyOutput(err, out), detail(out))
	}
	return nil
}

func classify(err error) error {
	if errors.Is(err, exec.ErrNotFound) {
		return ErrToolMissing
	}
	return err
}

func classifyOutput(err error, out []byte) error {
	if strings.Contains(string(out), "No screen session found") {
		return ErrNoSession
	}
	return classify(err)
}

func detail(out []byte) string {
	trimmed := strings.TrimSpace(string(out))
	if trimmed == "" {
		return ""
	}
	return ": " + trimmed
}

var _ Multiplexer = (*Screen)(nil)

package clipboard

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

var ErrToolNotFound = errors.New("clipboard tool not found")

type Tool struct {
	Path string
	Args []string
}

// Resolve picks the platform copy tool. lookPath is injectable for tests.
func Resolve(goos string, lookPath func(string) (string, error)) (Tool, error) {
	var candidates []Tool
	switch goos {
	case "darwin":
		candidates = []Tool{{Path: "pbcopy"}}
	case "linux":
		candidates = []Tool{
			{Path: "wl-copy"},
			{Path: "xclip", Args: []string{"-selection", "clipboard"}},
			{Path: "xsel", Args: []string{"--clipboard", "--input"}},
		}
	default:
		return Tool{}, ErrToolNotFound
	}

	for _, c := range candidates {
		if path, err := lookPath(c.Path); err == nil {
			return Tool{Path: path, Args: c.Args}, nil
		}
	}
	return Tool{}, ErrToolNotFound
}

// Copy pipes text into the system clipboard tool.
func Copy(ctx context.Context, text string) error {
	tool, err := Resolve(runtime.GOOS, exec.LookPath)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, tool.Path, tool.Args...)
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		if len(out) > 0 {
			return fmt.Errorf("clipboard command failed: %s: %w", strings.TrimSpace(string(out)), err)
		}
		return fmt.Errorf("clipboard command failed: %w", err)
	}
	return nil
}

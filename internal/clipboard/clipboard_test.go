package clipboard

import (
	"errors"
	"testing"
)

func TestResolveDarwin(t *testing.T) {
	tool, err := Resolve("darwin", func(name string) (string, error) {
		if name == "pbcopy" {
			return "/usr/bin/pbcopy", nil
		}
		return "", errors.New("not found")
	})
	if err != nil {
		t.Fatalf("expected tool, got error: %v", err)
	}
	if tool.Path != "/usr/bin/pbcopy" || len(tool.Args) != 0 {
		t.Fatalf("unexpected tool: %#v", tool)
	}
}

func TestResolveLinuxPrefersWlCopy(t *testing.T) {
	tool, err := Resolve("linux", func(name string) (string, error) {
		switch name {
		case "wl-copy", "xclip":
			return "/usr/bin/" + name, nil
		default:
			return "", errors.New("not found")
		}
	})
	if err != nil {
		t.Fatalf("expected tool, got error: %v", err)
	}
	if tool.Path != "/usr/bin/wl-copy" {
		t.Fatalf("expected wl-copy, got %q", tool.Path)
	}
}

func TestResolveLinuxFallsBackToXsel(t *testing.T) {
	tool, err := Resolve("linux", func(name string) (string, error) {
		if name == "xsel" {
			return "/usr/bin/xsel", nil
		}
		return "", errors.New("not found")
	})
	if err != nil {
		t.Fatalf("expected tool, got error: %v", err)
	}
	if tool.Path != "/usr/bin/xsel" {
		t.Fatalf("expected xsel, got %q", tool.Path)
	}
	if len(tool.Args) != 2 || tool.Args[0] != "--clipboard" {
		t.Fatalf("unexpected xsel args: %#v", tool.Args)
	}
}

func TestResolveUnavailable(t *testing.T) {
	_, err := Resolve("linux", func(string) (string, error) {
		return "", errors.New("not found")
	})
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
}

package shared

import (
	"context"
	"errors"
	"reflect"
	"runtime"
	"testing"
)

func TestBrowserCommand(t *testing.T) {
	const target = "https://accounts.google.com/o/oauth2/auth?a=1&b=2"

	tc := []struct {
		name     string
		goos     string
		wantName string
		wantArgs []string
		wantErr  bool
	}{
		{name: "macOS", goos: "darwin", wantName: "open", wantArgs: []string{target}},
		{name: "linux", goos: "linux", wantName: "xdg-open", wantArgs: []string{target}},
		{name: "bsd", goos: "freebsd", wantName: "xdg-open", wantArgs: []string{target}},
		{name: "windows keeps query intact", goos: "windows", wantName: "rundll32", wantArgs: []string{"url.dll,FileProtocolHandler", target}},
		{name: "unsupported", goos: "plan9", wantErr: true},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			name, args, err := browserCommand(tt.goos, target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("browserCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if name != tt.wantName || !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("browserCommand() = %s %v, want %s %v", name, args, tt.wantName, tt.wantArgs)
			}
		})
	}
}

func TestOpenBrowser(t *testing.T) {
	var launched []string
	original := startCommand
	startCommand = func(name string, args ...string) error {
		launched = append(launched, name)
		return nil
	}
	t.Cleanup(func() { startCommand = original })

	t.Run("rejects non web URLs", func(t *testing.T) {
		for _, target := range []string{"", "file:///etc/passwd", "javascript:alert(1)", "https://"} {
			if err := OpenBrowser(context.Background(), target); !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("OpenBrowser(%q) expected ErrInvalidArgument, got %v", target, err)
			}
		}
		if len(launched) != 0 {
			t.Errorf("expected no launch, got %v", launched)
		}
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := OpenBrowser(ctx, "https://example.com"); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("launch failure is wrapped", func(t *testing.T) {
		failure := errors.New("executable not found")
		startCommand = func(name string, args ...string) error { return failure }

		if _, _, cmdErr := browserCommand(runtime.GOOS, ""); cmdErr != nil {
			t.Skipf("no launcher on this platform: %v", cmdErr)
		}
		err := OpenBrowser(context.Background(), "https://example.com")
		if !errors.Is(err, failure) {
			t.Errorf("expected wrapped launch error, got %v", err)
		}
	})
}

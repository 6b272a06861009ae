// Package browser opens authorization links in the user's default web browser.
package browser

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	log "github.com/sirupsen/logrus"
	"github.com/skratchdot/open-golang/open"
)

// ErrUnavailable is returned when no browser can be launched, for example in
// an SSH session or a headless container.
var ErrUnavailable = errors.New("no browser available")

var linuxBrowsers = []string{"xdg-open", "x-www-browser", "www-browser", "firefox", "chromium", "google-chrome"}

// Opener launches URLs. The zero value uses open-golang with a platform command fallback.
type Opener struct {
	// Run replaces open.Run in tests.
	Run func(url string) error
	// LookPath replaces exec.LookPath in tests.
	LookPath func(file string) (string, error)
	// Getenv replaces os.Getenv in tests.
	Getenv func(key string) string
	// GOOS replaces runtime.GOOS in tests.
	GOOS string
}

// OpenURL opens url with the default Opener.
func OpenURL(url string) error {
	return (&Opener{}).OpenURL(url)
}

// IsAvailable reports whether the default Opener can plausibly launch a browser.
func IsAvailable() bool {
	return (&Opener{}).IsAvailable()
}

// OpenURL opens url in the default web browser. It tries open-golang first and
// falls back to platform-specific commands.
func (o *Opener) OpenURL(url string) error {
	if !o.IsAvailable() {
		return ErrUnavailable
	}

	run := open.Run
	if o.Run != nil {
		run = o.Run
	}
	err := run(url)
	if err == nil {
		log.Debug("opened URL using open-golang")
		return nil
	}
	log.Debugf("open-golang failed: %v, trying platform-specific commands", err)

	cmd, errCmd := o.platformCommand(url)
	if errCmd != nil {
		return errCmd
	}
	log.Debugf("running browser command: %s", cmd.Path)
	if errStart := cmd.Start(); errStart != nil {
		return fmt.Errorf("failed to start browser command: %w", errStart)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// IsAvailable checks for a graphical session and a command able to open a browser.
// Setting OKSOCIAL_NO_BROWSER disables browser launching entirely.
func (o *Opener) IsAvailable() bool {
	if o.getenv("OKSOCIAL_NO_BROWSER") != "" {
		return false
	}
	switch o.goos() {
	case "darwin":
		return o.hasCommand("open")
	case "windows":
		return o.hasCommand("rundll32")
	case "linux", "freebsd", "openbsd", "netbsd":
		if o.getenv("DISPLAY") == "" && o.getenv("WAYLAND_DISPLAY") == "" {
			return false
		}
		return o.firstBrowser() != ""
	default:
		return false
	}
}

func (o *Opener) platformCommand(url string) (*exec.Cmd, error) {
	switch o.goos() {
	case "darwin":
		return exec.Command("open", url), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url), nil
	default:
		if name := o.firstBrowser(); name != "" {
			return exec.Command(name, url), nil
		}
		return nil, ErrUnavailable
	}
}

func (o *Opener) firstBrowser() string {
	for _, name := range linuxBrowsers {
		if o.hasCommand(name) {
			return name
		}
	}
	return ""
}

func (o *Opener) hasCommand(name string) bool {
	lookPath := exec.LookPath
	if o.LookPath != nil {
		lookPath = o.LookPath
	}
	_, err := lookPath(name)
	return err == nil
}

func (o *Opener) getenv(key string) string {
	if o.Getenv != nil {
		return o.Getenv(key)
	}
	return os.Getenv(key)
}

func (o *Opener) goos() string {
	if o.GOOS != "" {
		return o.GOOS
	}
	return runtime.GOOS
}

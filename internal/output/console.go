// Package output renders progress, links and errors for the command line.
package output

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/lipgloss"
	log "github.com/sirupsen/logrus"
	"github.com/yschimke/oksocial/internal/auth"
	"github.com/yschimke/oksocial/internal/browser"
)

var _ auth.Output = (*Console)(nil)

var (
	infoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	linkStyle  = lipgloss.NewStyle().Underline(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	hintStyle  = lipgloss.NewStyle().Faint(true)
)

// URLOpener opens a link in a browser.
type URLOpener interface {
	OpenURL(url string) error
}

// Console writes user facing messages to Out, which is stderr by default so
// that response bodies on stdout stay clean.
type Console struct {
	Out       io.Writer
	Opener    URLOpener
	Clipboard func(text string) error

	mu sync.Mutex
}

// NewConsole returns a Console on stderr that opens links with the system browser.
func NewConsole() *Console {
	return &Console{Out: os.Stderr, Opener: &browser.Opener{}, Clipboard: clipboard.WriteAll}
}

// OpenLink opens url in the browser. When no browser can be launched it prints
// the link and copies it to the clipboard so it can be pasted elsewhere.
func (c *Console) OpenLink(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.Opener != nil {
		errOpen := c.Opener.OpenURL(url)
		if errOpen == nil {
			c.println(hintStyle.Render("Opened in browser: ") + linkStyle.Render(url))
			return nil
		}
		log.Debugf("browser open failed: %v", errOpen)
	}

	c.println(infoStyle.Render("Open this link to authorize:"))
	c.println(linkStyle.Render(url))
	if c.Clipboard != nil && !clipboard.Unsupported {
		if errCopy := c.Clipboard(url); errCopy != nil {
			log.Debugf("clipboard copy failed: %v", errCopy)
		} else {
			c.println(hintStyle.Render("(copied to clipboard)"))
		}
	}
	return nil
}

// Info prints a progress message.
func (c *Console) Info(text string) {
	c.println(infoStyle.Render(text))
}

// ShowError prints a failure with its cause and records it at debug level.
func (c *Console) ShowError(text string, cause error) {
	if cause != nil {
		log.WithError(cause).Debug(text)
		c.println(errorStyle.Render(text) + ": " + cause.Error())
		return
	}
	c.println(errorStyle.Render(text))
}

func (c *Console) println(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.Out
	if out == nil {
		out = os.Stderr
	}
	_, _ = fmt.Fprintln(out, line)
}

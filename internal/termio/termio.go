// Package termio owns the terminal's lifecycle: opening /dev/tty,
// putting it in raw mode, entering the alternate screen and SGR
// mouse reporting, and restoring everything on the way out — including a
// best-effort restoration when Run recovers a panic from its callback. That
// restoration runs from a deferred recover(), not from a signal handler;
// panics on other goroutines are not recovered.
package termio

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/x/term"
)

const (
	enterAltScreen  = "\x1b[?1049h"
	exitAltScreen   = "\x1b[?1049l"
	enableSGRMouse  = "\x1b[?1006h"
	disableSGRMouse = "\x1b[?1006l"
	showCursor      = "\x1b[?25h"
	resetAttrs      = "\x1b[0m"
)

// Terminal owns the open /dev/tty file descriptor and the saved termios
// state needed to restore it.
type Terminal struct {
	file  *os.File
	state *term.State

	mu       sync.Mutex
	restored bool
}

// global holds the most recently opened Terminal so the panic handler can
// reach it without threading a reference through every call frame — the
// handler runs during an unwind where that plumbing isn't available.
var global atomic.Pointer[Terminal]

// Open opens /dev/tty read/write, saves the current termios state, applies
// raw mode, and enters the alternate screen with SGR mouse reporting;
// pending input is not flushed. Callers must call Close (directly, or via
// Run, which closes the terminal on return and after a recovered panic) to
// restore the terminal.
func Open() (*Terminal, error) {
	f, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/tty: %w", err)
	}

	fd := int(f.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("set raw mode: %w", err)
	}

	t := &Terminal{file: f, state: state}
	global.Store(t)

	if _, err := f.WriteString(enterAltScreen + enableSGRMouse); err != nil {
		t.Close()
		return nil, fmt.Errorf("enter alt screen: %w", err)
	}

	return t, nil
}

// File returns the underlying /dev/tty file, for reading input bytes and
// writing rendered frames.
func (t *Terminal) File() *os.File { return t.file }

// Size returns the terminal's current width and height in character cells.
func (t *Terminal) Size() (width, height int, err error) {
	return term.GetSize(int(t.file.Fd()))
}

// Close restores the terminal to its pre-Open state: exits SGR mouse
// reporting and the alternate screen, shows the cursor, resets attributes,
// restores the saved termios, and closes the fd. Safe to call more than
// once; only the first call does anything.
func (t *Terminal) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.restored {
		return nil
	}
	t.restored = true

	_, writeErr := t.file.WriteString(disableSGRMouse + showCursor + resetAttrs + exitAltScreen)
	restoreErr := term.Restore(int(t.file.Fd()), t.state)
	closeErr := t.file.Close()

	global.CompareAndSwap(t, nil)

	if writeErr != nil {
		return writeErr
	}
	if restoreErr != nil {
		return restoreErr
	}
	return closeErr
}

// RestoreForPanic performs the same restoration as Close, but from a
// recover() path: it never returns an error and is safe to call even if
// the terminal was never opened (global is nil). It is intentionally
// allocation-free on the common path so it behaves reasonably even when
// invoked while unwinding from an out-of-memory panic.
func RestoreForPanic() {
	t := global.Load()
	if t == nil {
		return
	}
	_ = t.Close()
}

package termio

import (
	"fmt"
	"os"
)

// Run calls fn with the terminal lifecycle as its backdrop: if fn panics,
// the terminal is restored before the panic message reaches the user, so a
// crash never leaves the shell in raw mode inside the alternate screen.
// Exit codes: 0 on a clean return, 1 if fn returns an error or panics.
func Run(fn func(*Terminal) error) int {
	t, err := Open()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ikigai:", err)
		return 1
	}

	code := 1
	func() {
		defer func() {
			if r := recover(); r != nil {
				RestoreForPanic()
				fmt.Fprintln(os.Stderr, "ikigai: fatal:", r)
				code = 1
				return
			}
		}()
		if runErr := fn(t); runErr != nil {
			fmt.Fprintln(os.Stderr, "ikigai:", runErr)
			code = 1
		} else {
			code = 0
		}
	}()

	t.Close()
	return code
}

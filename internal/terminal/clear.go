// Package terminal provides small helpers for interactive prompts: reading
// lines and secrets, and clearing what a prompt left on screen.
package terminal

import (
	"fmt"
	"math"
	"os"

	"golang.org/x/term"
)

// ClearPreviousLines clears text that was previously printed, such as a
// prompt and the user's answer. textLength is the number of characters
// printed (prompt + input).
func ClearPreviousLines(textLength int) {
	termWidth := 80
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		termWidth = width
	}

	// After Enter the cursor sits on a new line below the input.
	linesToClear := wrappedLines(textLength, termWidth) + 1

	for i := 0; i < linesToClear; i++ {
		fmt.Print("\r\x1b[2K")
		if i < linesToClear-1 {
			fmt.Print("\x1b[1A")
		}
	}
}

func wrappedLines(textLength, width int) int {
	n := int(math.Ceil(float64(textLength) / float64(width)))
	if n < 1 {
		return 1
	}
	return n
}

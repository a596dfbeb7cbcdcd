package common

import (
	"github.com/olekukonko/ts"
)

// TerminalWidth is the width of the terminal, zero when stdout is not one
var TerminalWidth int

func init() {
	size, err := ts.GetSize()
	if err != nil {
		return
	}
	TerminalWidth = size.Col()
}

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// stderr receives warnings; tests swap it out.
var stderr io.Writer = os.Stderr

var warnLabel = color.New(color.FgYellow, color.Bold)

// warnf prints a highlighted warning to stderr. Color is dropped when
// stderr is not a terminal or NO_COLOR is set.
func warnf(format string, args ...any) {
	if f, ok := stderr.(*os.File); !ok || f != os.Stderr {
		fmt.Fprintf(stderr, "warning: "+format+"\n", args...)
		return
	}
	warnLabel.Fprint(stderr, "warning:")
	fmt.Fprintf(stderr, " "+format+"\n", args...)
}

package borzoi

// Colored operator-facing terminal output.  The DSP worker, controller, and
// auto controllers all report through here rather than carrying a logger
// around; cmd front ends use a structured logger for their own concerns.

import (
	"fmt"
	"sync"
)

type tc_color_e int

const (
	TC_COLOR_INFO  tc_color_e = iota /* default */
	TC_COLOR_ERROR                   /* red */
	TC_COLOR_REC                     /* green */
	TC_COLOR_DEBUG                   /* dark green */
)

var tc_codes = map[tc_color_e]string{
	TC_COLOR_INFO:  "\033[0m",
	TC_COLOR_ERROR: "\033[1;31m",
	TC_COLOR_REC:   "\033[32m",
	TC_COLOR_DEBUG: "\033[2;32m",
}

var tc_mutex sync.Mutex
var tc_enabled bool

func text_color_init(enable_color bool) {
	tc_mutex.Lock()
	defer tc_mutex.Unlock()
	tc_enabled = enable_color
}

func text_color_set(c tc_color_e) {
	tc_mutex.Lock()
	defer tc_mutex.Unlock()
	if tc_enabled {
		fmt.Print(tc_codes[c])
	}
}

// tc_printf is the module's printf.  Output lands on stdout in whatever
// color the caller last selected with text_color_set.
func tc_printf(format string, a ...any) {
	fmt.Printf(format, a...)
}

/* end textcolor.go */

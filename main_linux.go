//go:build linux

package main

import "os"

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "-gui" || arg == "--gui" {
			os.Exit(initGUI())
		}
	}
	os.Exit(run())
}

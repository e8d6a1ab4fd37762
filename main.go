package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitOnError(err)
	}
}

// exitOnError is split out so main stays a one-liner.
func exitOnError(err error) {
	printError(os.Stderr, err)
	os.Exit(1)
}

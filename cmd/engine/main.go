// Package main is the entry point of the folio engine.
package main

import "os"

func main() {
	os.Exit(Run())
}

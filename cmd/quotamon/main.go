// Package main is the entry point for the quotamon server and CLI.
package main

func main() {
	Execute()
}

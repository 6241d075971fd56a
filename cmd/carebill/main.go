// Package main is the entry point for carebill.
package main

func main() {
	Execute()
}

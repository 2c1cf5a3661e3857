// Package main is the entry point for the incident detector.
package main

import "incident-detector/cmd/detect/cmd"

func main() {
	cmd.Execute()
}

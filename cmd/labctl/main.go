// labctl is a command line client for the ElecLab request API.
package main

func main() {
	Execute()
}

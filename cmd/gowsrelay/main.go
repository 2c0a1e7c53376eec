// Command gowsrelay runs a relay server and connects peers to it.
package main

func main() {
	Execute()
}

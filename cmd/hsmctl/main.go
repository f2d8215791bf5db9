// Command hsmctl inspects and exercises the service life cycle machine.
package main

func main() {
	Execute()
}

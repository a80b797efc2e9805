package main

import "github.com/Session-Vigil/Sessionvigil/cmd/session-vigil/cmd"

func main() {
	cmd.Execute()
}

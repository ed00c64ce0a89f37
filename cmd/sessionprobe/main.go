// Command sessionprobe measures how long a web application keeps an idle
// session alive.
package main

import "sessionprobe/cmd"

func main() {
	cmd.Execute()
}

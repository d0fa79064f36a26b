package main

import "github.com/oshokin/alarm-clock/cmd/alarmclock/cmd"

func main() {
	cmd.Execute()
}

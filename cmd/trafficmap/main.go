package main

import "github.com/MeKo-Tech/trafficmap/internal/cmd"

func main() {
	cmd.Execute()
}

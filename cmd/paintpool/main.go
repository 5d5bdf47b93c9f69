package main

import (
	"log"

	"github.com/atelier-rl/paintpool/cmd"
)

func main() {
	if err := cmd.RootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}

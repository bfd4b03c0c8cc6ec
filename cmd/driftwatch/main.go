package main

import (
	"os"

	"horse.fit/driftwatch/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}

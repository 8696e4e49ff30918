package main

import (
	"os"

	"horse.fit/signalwatch/internal/app"
)

func main() {
	os.Exit(app.Run(os.Args[1:]))
}

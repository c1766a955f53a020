package main

import (
	"os"

	reelscmder "github.com/papercomputeco/reels/cmd/reels"
)

func main() {
	cmd := reelscmder.NewReelsCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// chatrelay - Telegram group relay to an OpenAI-compatible completion endpoint
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// Command chat is a terminal client for marketplace chat.
//
// Mint a development token (uses NOTIFY_JWT_SECRET):
//
//	chat token 65a1f0c2e4b0a1b2c3d4e5f6
//
// Chat with another user:
//
//	chat open --user <id> --token <jwt> <otherUserId>
//
// Watch incoming message notifications:
//
//	chat notifications --user <id> --token <jwt>
package main

import (
	"os"

	"marketchat/pkg/logger"
)

func main() {
	logger.NewWithWriter(os.Stderr, "warn", "text")

	if err := buildRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

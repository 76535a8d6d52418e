package adapter

import "time"

type Config struct {
	Token       string
	PollTimeout time.Duration
	// URL overrides the Bot API endpoint (tests).
	URL string
	// Offline skips the getMe call on construction (tests).
	Offline bool
}

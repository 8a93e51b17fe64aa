package main

const (
	// stdinLineBuffer is the command channel depth. The controller is a
	// single trusted process; bursts stay small.
	stdinLineBuffer = 16

	// defaultStateWSPath is where the observer hub is mounted when a
	// listen address is configured.
	defaultStateWSPath = "/ws/state"
)

package main

import (
	"strconv"
	"unicode/utf8"
)

// Longest payload echoed in full.
const maxShown = 256

// Commands are logged only; interpreting them belongs to the actuator
// service subscribed to the same topic.
func handleCommand(payload []byte) {
	log.Info("command: %s", describe(payload))
}

func describe(payload []byte) string {
	if !utf8.Valid(payload) {
		return "<" + strconv.Itoa(len(payload)) + " bytes binary>"
	}
	if len(payload) > maxShown {
		return string(payload[:maxShown]) + "..."
	}
	return string(payload)
}

// Package tui provides the terminal chat interface for Morizo.
//
// The chat view shows the conversation transcript, the current course of a
// menu being built, and a progress line fed by chain events. Turns are sent
// through a Replier (normally gateway.Router) off the UI goroutine.
//
// Usage:
//
//	program, app := tui.NewChatProgram(router, sessionID, userID)
//	go forwardEvents(program) // program.Send(tui.ChainEventMsg{Event: e})
//	program.Run()
package tui

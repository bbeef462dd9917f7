// Package gateway connects chat front ends to the orchestrator. Router
// decides what a free-text turn means; messengers such as Telegram deliver
// turns and replies.
package gateway

import "context"

// Messenger is a chat front end.
type Messenger interface {
	// Start runs the receive loop until ctx is done or Stop is called.
	Start(ctx context.Context) error
	// Send delivers text to a chat.
	Send(chatID string, text string) error
	// Stop ends the receive loop.
	Stop() error
}

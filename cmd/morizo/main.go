// Command morizo runs the Morizo task orchestration engine as a terminal
// chat, an HTTP API or a Telegram bot.
package main

func main() {
	Execute()
}

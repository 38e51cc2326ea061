// Package botapi re-exports the canonical Bot HTTP API JSON shapes used on
// the wire: the gateway's outbound updates and message objects are the
// go-telegram-bot-api structs, not hand-rolled ones, so callers written
// against the real Bot API decode them without surprises.
package botapi

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Update is the tagged union from §3: either a message or a callback_query,
// discriminated by which pointer field is populated on output.
type Update = tgbotapi.Update

// Message, User, Chat and CallbackQuery are the canonical Bot API objects.
type Message = tgbotapi.Message
type User = tgbotapi.User
type Chat = tgbotapi.Chat
type CallbackQuery = tgbotapi.CallbackQuery
type InlineKeyboardMarkup = tgbotapi.InlineKeyboardMarkup
type InlineKeyboardButton = tgbotapi.InlineKeyboardButton

// Envelope is the response wrapper on every HTTP response:
// {ok, result?, error_code?, description?}.
type Envelope struct {
	OK          bool        `json:"ok"`
	Result      interface{} `json:"result,omitempty"`
	ErrorCode   int         `json:"error_code,omitempty"`
	Description string      `json:"description,omitempty"`
}

// OK builds a successful envelope.
func OK(result interface{}) Envelope {
	return Envelope{OK: true, Result: result}
}

// Error builds a failed envelope with the given HTTP-shaped error code.
func Error(code int, description string) Envelope {
	return Envelope{OK: false, ErrorCode: code, Description: description}
}

// ChatType returns "private" when the chat carries a first name (a DM),
// "group" otherwise — the literal rule from the event ingest spec.
func ChatType(hasFirstName bool) string {
	if hasFirstName {
		return "private"
	}
	return "group"
}

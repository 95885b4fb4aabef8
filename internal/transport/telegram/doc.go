// Package telegram is a transport provider backed by the Telegram Bot API
// (telebot).
//
// Pairing binds the session to one operator account: an unpaired session
// publishes a t.me deep link, and the first "/start <code>" that carries the
// code becomes the session owner. Messages from the owner, and channel
// posts, are self-authored.
package telegram

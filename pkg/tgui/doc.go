// Package tgui formats text for Telegram's HTML parse mode. Values of type H
// are already escaped; everything else is treated as plain text.
package tgui

// Package transport provides implementations of the playback.Transport
// contract: a discordgo voice connection adapter, a raw UDP voice transport
// that seals packets with xsalsa20-poly1305, and a Null transport for
// development tooling.
package transport

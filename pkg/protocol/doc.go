// ABOUTME: ListenBuddy wire protocol package
// ABOUTME: Defines the discovery datagram and the framed PCM stream format
// Package protocol implements the ListenBuddy wire formats.
//
// Two formats exist. Discovery is a one-way UDP broadcast of plain text:
//
//	DISCOVER|<server name>|<tcp port>
//
// Streaming runs over TCP. The server writes an 8 byte header (sample rate
// and channel count, both uint32 big-endian) exactly once, then a sequence
// of frames, each a signed 32-bit big-endian length followed by that many
// bytes of PCM. A length of zero or less marks the end of the stream.
//
// Example:
//
//	if err := protocol.WriteHeader(conn, protocol.StreamHeader{SampleRate: 44100, Channels: 2}); err != nil {
//	    return err
//	}
//	err := protocol.WriteFrame(conn, pcm)
package protocol

// Package playback implements the paced audio delivery loop that turns a
// stream of 20ms audio frames into a steady sequence of transport packets.
//
// The Engine pulls frames from a FrameSource (raw PCM or a length-prefixed
// frame container), encodes and volume-adjusts them through an Encoder,
// stamps them with a sequence number and sample timestamp from the Clock,
// and hands them to a Transport at a fixed cadence. The Pacer measures how
// long the pipeline actually takes and corrects the inter-packet delay so
// the stream stays on schedule under jitter.
package playback

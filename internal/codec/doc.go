// Package codec implements the audio encoder collaborator: Opus encoding of
// raw PCM frames, volume scaling, FFmpeg-backed decoding of arbitrary audio
// into raw PCM, and production of the length-prefixed frame container
// ([uint16 LE length][opus bytes], repeated until end-of-stream).
package codec

package main

import (
	"encoding/binary"
	"errors"
	"io"
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/lowensten/voicebox/internal/codec"
	"github.com/lowensten/voicebox/internal/config"
	"github.com/lowensten/voicebox/internal/datalayer"
	"github.com/lowensten/voicebox/internal/playback"
	"github.com/lowensten/voicebox/internal/repository"
	"github.com/lowensten/voicebox/internal/transport"
)

func main() {
	config.LoadEnv()

	app := &cli.App{
		Name:        "voicebox-cli",
		Description: "A development CLI tool for working with voicebox sounds without Discord",
		Commands: []*cli.Command{
			encodeCommand,
			inspectCommand,
			playCommand,
			listCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("Error running CLI: %v", err)
	}
}

var encodeCommand = &cli.Command{
	Name:      "encode",
	Usage:     "Transcode an audio file into the frame container",
	ArgsUsage: "<input> <output>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "ffmpeg",
			Usage: "Path to the ffmpeg binary",
			Value: "ffmpeg",
		},
		&cli.IntFlag{
			Name:  "bitrate",
			Usage: "Opus bitrate in bits per second",
			Value: codec.DefaultBitrate,
		},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 2 {
			return cli.Exit("usage: encode <input> <output>", 1)
		}

		in, err := os.Open(c.Args().Get(0))
		if err != nil {
			return cli.Exit("Failed to open input: "+err.Error(), 1)
		}
		defer in.Close()

		framed, err := codec.EncodeFramed(c.String("ffmpeg"), c.Int("bitrate"), in)
		if err != nil {
			return cli.Exit("Failed to transcode: "+err.Error(), 1)
		}
		defer framed.Close()

		out, err := os.Create(c.Args().Get(1))
		if err != nil {
			return cli.Exit("Failed to create output: "+err.Error(), 1)
		}
		defer out.Close()

		n, err := io.Copy(out, framed)
		if err != nil {
			return cli.Exit("Failed to write output: "+err.Error(), 1)
		}
		log.Printf("Wrote %d bytes to %s", n, c.Args().Get(1))
		return nil
	},
}

var inspectCommand = &cli.Command{
	Name:      "inspect",
	Usage:     "Print frame statistics for a frame container file",
	ArgsUsage: "<file>",
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("usage: inspect <file>", 1)
		}

		f, err := os.Open(c.Args().Get(0))
		if err != nil {
			return cli.Exit("Failed to open file: "+err.Error(), 1)
		}
		defer f.Close()

		var frames, bytes, maxFrame int
		for {
			var frameLen uint16
			if err := binary.Read(f, binary.LittleEndian, &frameLen); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return cli.Exit("Malformed container: "+err.Error(), 1)
			}
			if _, err := f.Seek(int64(frameLen), io.SeekCurrent); err != nil {
				return cli.Exit("Malformed container: "+err.Error(), 1)
			}
			frames++
			bytes += int(frameLen)
			if int(frameLen) > maxFrame {
				maxFrame = int(frameLen)
			}
		}

		duration := time.Duration(frames) * playback.FrameLengthMS * time.Millisecond
		log.Printf("frames: %d", frames)
		log.Printf("duration: %s", duration)
		log.Printf("payload bytes: %d", bytes)
		log.Printf("largest frame: %d bytes", maxFrame)
		return nil
	},
}

var playCommand = &cli.Command{
	Name:      "play",
	Usage:     "Run a frame container through the paced playback loop, discarding output",
	ArgsUsage: "<file>",
	Flags: []cli.Flag{
		&cli.Float64Flag{
			Name:  "volume",
			Usage: "Playback volume, 1.0 is unchanged",
			Value: 1.0,
		},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() != 1 {
			return cli.Exit("usage: play <file>", 1)
		}

		f, err := os.Open(c.Args().Get(0))
		if err != nil {
			return cli.Exit("Failed to open file: "+err.Error(), 1)
		}
		defer f.Close()

		encoder, err := codec.NewOpusEncoder(codec.DefaultBitrate)
		if err != nil {
			return cli.Exit("Failed to create encoder: "+err.Error(), 1)
		}

		sink := transport.NewNull()
		engine := playback.NewEngine(encoder, sink)
		defer engine.Destroy()
		engine.SetVolume(c.Float64("volume"))

		start := time.Now()
		if err := engine.PlayFramed(f); err != nil {
			return cli.Exit("Playback failed: "+err.Error(), 1)
		}
		elapsed := time.Since(start)

		log.Printf("sent %d packets in %s", sink.Sent(), elapsed.Round(time.Millisecond))
		log.Printf("playback position: %s", engine.Elapsed())
		return nil
	},
}

var listCommand = &cli.Command{
	Name:  "list",
	Usage: "List all sounds stored for a specific guild",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "guild-id",
			Usage:    "ID of the guild to list sounds for",
			Required: true,
		},
	},
	Action: func(c *cli.Context) error {
		pool, err := datalayer.NewPostgresPoolFromEnv(c.Context)
		if err != nil {
			return cli.Exit("Failed to create postgres pool: "+err.Error(), 1)
		}
		defer pool.Close()

		repo := repository.NewPostgresSoundRepository(pool)
		sounds, err := repo.List(c.Context, c.String("guild-id"))
		if err != nil {
			return cli.Exit("Failed to list sounds: "+err.Error(), 1)
		}

		if len(sounds) == 0 {
			log.Println("No sounds found for the specified guild.")
			return nil
		}
		for _, sound := range sounds {
			log.Printf("%s  %s  (%d bytes, key %s)", sound.ID, sound.Name, sound.FileSize, sound.Key)
		}
		return nil
	},
}

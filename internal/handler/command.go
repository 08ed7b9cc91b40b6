package handler

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

var soundNameOption = &discordgo.ApplicationCommandOption{
	Name:        "name",
	Type:        discordgo.ApplicationCommandOptionString,
	Description: "The name of the sound.",
	Required:    true,
}

// Commands is a list of all the commands the bot can handle.
// This is used to register the commands with Discord.
var Commands = []*discordgo.ApplicationCommand{
	{
		Name:        "sound",
		Description: "Manage and play sounds",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "play",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Play a sound in your voice channel",
				Options:     []*discordgo.ApplicationCommandOption{soundNameOption},
			},
			{
				Name:        "pause",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Pause the playing sound",
			},
			{
				Name:        "resume",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Resume a paused sound",
			},
			{
				Name:        "skip",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Skip ahead in the playing sound",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "seconds",
						Type:        discordgo.ApplicationCommandOptionNumber,
						Description: "How many seconds to skip.",
						Required:    true,
					},
				},
			},
			{
				Name:        "stop",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Stop the playing sound",
			},
			{
				Name:        "volume",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Set the playback volume",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "percent",
						Type:        discordgo.ApplicationCommandOptionNumber,
						Description: "Volume percentage, 100 is unchanged.",
						Required:    true,
					},
				},
			},
			{
				Name:        "list",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "List this server's sounds",
			},
			{
				Name:        "add",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Add a sound to this server",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Name:        "audio",
						Type:        discordgo.ApplicationCommandOptionAttachment,
						Description: "The audio file to store.",
						Required:    true,
					},
					{
						Name:        "name",
						Type:        discordgo.ApplicationCommandOptionString,
						Description: "The name of the sound. Defaults to the file name if not provided.",
						Required:    false,
					},
				},
			},
			{
				Name:        "remove",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Remove a sound from this server",
				Options:     []*discordgo.ApplicationCommandOption{soundNameOption},
			},
			{
				Name:        "schedule",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Description: "Play a sound in a channel on a recurring schedule",
				Options: []*discordgo.ApplicationCommandOption{
					soundNameOption,
					{
						Name:        "cron",
						Type:        discordgo.ApplicationCommandOptionString,
						Description: "A cron expression, like '0 9 * * 1-5'.",
						Required:    true,
					},
					{
						Name:        "channel",
						Type:        discordgo.ApplicationCommandOptionChannel,
						Description: "The voice channel to play in.",
						Required:    true,
						ChannelTypes: []discordgo.ChannelType{
							discordgo.ChannelTypeGuildVoice,
						},
					},
				},
			},
		},
	},
}

func EstablishCommands(s *discordgo.Session, guildID string) error {
	_, err := s.ApplicationCommandBulkOverwrite(s.State.User.ID, guildID, Commands)
	if err != nil {
		return fmt.Errorf("failed to establish commands: %w", err)
	}
	return nil
}

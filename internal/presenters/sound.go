package presenters

import (
	"github.com/bwmarrin/discordgo"

	"github.com/lowensten/voicebox/internal/repository"
)

var noSoundsFoundResponse = &discordgo.InteractionResponse{
	Type: discordgo.InteractionResponseChannelMessageWithSource,
	Data: &discordgo.InteractionResponseData{
		Content: "No sounds found",
	},
}

func soundToSelectMenuOption(s repository.Sound) discordgo.SelectMenuOption {
	return discordgo.SelectMenuOption{
		Label: s.Name,
		Value: s.ID.String(),
	}
}

var soundSelectMinValues = 1

const ComponentIDSoundSelect = "sound_select_menu"

func buildSoundSelectMenu(sounds []repository.Sound) *discordgo.InteractionResponse {
	var options []discordgo.SelectMenuOption
	for _, s := range sounds {
		options = append(options, soundToSelectMenuOption(s))
	}

	menu := discordgo.SelectMenu{
		CustomID:    ComponentIDSoundSelect,
		Placeholder: "Select a sound",
		MinValues:   &soundSelectMinValues,
		MaxValues:   1,
		Options:     options,
	}

	row := discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			menu,
		},
	}

	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: "Choose a sound:",
			Components: []discordgo.MessageComponent{
				row,
			},
		},
	}
}

func BuildListSoundsResponse(sounds []repository.Sound) *discordgo.InteractionResponse {
	if len(sounds) == 0 {
		return noSoundsFoundResponse
	}

	return buildSoundSelectMenu(sounds)
}

// AckResponse is a plain message acknowledging a command.
func AckResponse(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	}
}

// ErrorResponse tells the invoking user what went wrong without pinging
// the channel.
func ErrorResponse(content string) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	}
}

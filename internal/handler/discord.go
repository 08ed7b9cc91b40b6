package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/lowensten/voicebox/internal/announce"
	"github.com/lowensten/voicebox/internal/codec"
	"github.com/lowensten/voicebox/internal/datalayer"
	"github.com/lowensten/voicebox/internal/playback"
	"github.com/lowensten/voicebox/internal/presenters"
	"github.com/lowensten/voicebox/internal/repository"
	"github.com/lowensten/voicebox/internal/voice"
)

type ReadyHandler = func(*discordgo.Session, *discordgo.Ready)
type InteractionCreateHandler = func(*discordgo.Session, *discordgo.InteractionCreate)

var ReadyLog = func(s *discordgo.Session, r *discordgo.Ready) {
	username := r.User.Username
	userID := r.User.ID
	slog.Info("Bot is ready", "username", username, "userID", userID)
}

// MaxStorageSize caps a guild's sound library.
const MaxStorageSize = 10 * 1024 * 1024 // 10 MB

// HTTPClient is an abstraction for making HTTP requests.
// The implementation is usually Go's stdlib http.Client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// SoundService carries the collaborators the sound commands need.
type SoundService struct {
	Repo          repository.SoundRepository
	Announcements repository.AnnouncementSaver
	Storage       datalayer.BlobStorage
	Manager       *voice.Manager
	HTTPClient    HTTPClient
	FFmpegPath    string
	// Bitrate is the opus bitrate in bits per second for transcoded sounds.
	// Zero picks the codec default.
	Bitrate int
}

// AddSoundRequest is a parsed /sound add invocation.
type AddSoundRequest struct {
	Attachment *discordgo.MessageAttachment
	Name       string
}

func CommandToAddSoundRequest(
	attachments map[string]*discordgo.MessageAttachment,
	options []*discordgo.ApplicationCommandInteractionDataOption,
) (*AddSoundRequest, error) {
	if len(attachments) != 1 {
		return nil, fmt.Errorf("expected exactly one attachment, got %d", len(attachments))
	}
	var attachment *discordgo.MessageAttachment
	for _, a := range attachments {
		attachment = a
	}

	var name string
	for _, option := range options {
		if option.Name == "name" {
			if option.Type != discordgo.ApplicationCommandOptionString {
				return nil, fmt.Errorf("invalid type for name option")
			}
			name = option.StringValue()
		}
	}
	if name == "" {
		name = attachment.Filename
	}

	return &AddSoundRequest{
		Attachment: attachment,
		Name:       name,
	}, nil
}

func CheckStorageAvailable(sounds []repository.Sound, requested, maxStorage int64) error {
	var totalSize int64
	for _, sound := range sounds {
		totalSize += sound.FileSize
	}

	if totalSize+requested > maxStorage {
		return &StorageLimitError{
			Requested: requested,
			Current:   totalSize,
			Max:       maxStorage,
		}
	}
	return nil
}

// AddSound downloads the attachment, transcodes it to the frame container,
// stores the result, and records the sound in the library.
func (svc *SoundService) AddSound(ctx context.Context, guildID string, req *AddSoundRequest) error {
	sounds, err := svc.Repo.List(ctx, guildID)
	if err != nil {
		return fmt.Errorf("failed to list sounds: %w", err)
	}
	if err := CheckStorageAvailable(sounds, int64(req.Attachment.Size), MaxStorageSize); err != nil {
		return &UserError{Message: "This server's sound storage is full."}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.Attachment.ProxyURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := svc.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to download attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download attachment: %s", resp.Status)
	}

	framed, err := codec.EncodeFramed(svc.FFmpegPath, svc.Bitrate, resp.Body)
	if err != nil {
		return fmt.Errorf("failed to transcode attachment: %w", err)
	}
	defer framed.Close()

	id := uuid.New()
	key := guildID + "/" + id.String() + ".dca"
	err = svc.Storage.Put(ctx, key, framed, datalayer.PutOptions{
		// Transcoded size is unknown until the stream ends.
		Size:        -1,
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("failed to store sound: %w", err)
	}

	return svc.Repo.Save(ctx, repository.Sound{
		ID:       id,
		GuildID:  guildID,
		Name:     req.Name,
		Key:      key,
		FileSize: int64(req.Attachment.Size),
	})
}

// RemoveSound deletes the library row and its stored blob.
func (svc *SoundService) RemoveSound(ctx context.Context, guildID, name string) error {
	sound, err := svc.Repo.Delete(ctx, guildID, name)
	if errors.Is(err, repository.ErrSoundNotFound) {
		return &UserError{Message: fmt.Sprintf("No sound named %q.", name)}
	}
	if err != nil {
		return err
	}
	if err := svc.Storage.Remove(ctx, sound.Key); err != nil {
		slog.Warn("failed to remove sound blob", "key", sound.Key, "error", err)
	}
	return nil
}

// ScheduleRequest is a parsed /sound schedule invocation.
type ScheduleRequest struct {
	Name      string
	Cron      string
	ChannelID string
}

func CommandToScheduleRequest(options []*discordgo.ApplicationCommandInteractionDataOption) (*ScheduleRequest, error) {
	req := &ScheduleRequest{
		Name:      requiredString(options, "name"),
		Cron:      requiredString(options, "cron"),
		ChannelID: requiredChannelID(options, "channel"),
	}
	if req.Name == "" || req.ChannelID == "" {
		return nil, fmt.Errorf("schedule command missing name or channel")
	}
	if err := announce.ValidateCron(req.Cron); err != nil {
		return nil, &UserError{Message: fmt.Sprintf("%q is not a valid cron expression.", req.Cron)}
	}
	return req, nil
}

// ScheduleSound registers a recurring announcement playing the named sound in
// the given channel on the cron schedule.
func (svc *SoundService) ScheduleSound(ctx context.Context, guildID string, req *ScheduleRequest) error {
	sound, err := svc.Repo.GetByName(ctx, guildID, req.Name)
	if errors.Is(err, repository.ErrSoundNotFound) {
		return &UserError{Message: fmt.Sprintf("No sound named %q.", req.Name)}
	}
	if err != nil {
		return err
	}

	announcement := repository.Announcement{
		ID:        uuid.New(),
		SoundID:   sound.ID,
		ChannelID: req.ChannelID,
		Cron:      req.Cron,
	}
	if err := svc.Announcements.Save(ctx, announcement); err != nil {
		return fmt.Errorf("failed to save announcement: %w", err)
	}
	return nil
}

// PlaySound joins the requester's voice channel and starts the sound. The
// playback loop runs in its own goroutine; starting a new sound stops any
// sound already playing in the guild.
func (svc *SoundService) PlaySound(ctx context.Context, s *discordgo.Session, guildID, userID, name string) error {
	sound, err := svc.Repo.GetByName(ctx, guildID, name)
	if errors.Is(err, repository.ErrSoundNotFound) {
		return &UserError{Message: fmt.Sprintf("No sound named %q.", name)}
	}
	if err != nil {
		return err
	}

	channelID, err := findVoiceChannel(s, guildID, userID)
	if err != nil {
		return &UserError{Message: "Join a voice channel first."}
	}

	engine, err := svc.Manager.Join(guildID, channelID)
	if err != nil {
		return fmt.Errorf("failed to join voice channel: %w", err)
	}

	stream, err := svc.Storage.Get(ctx, sound.Key)
	if err != nil {
		return fmt.Errorf("failed to fetch sound: %w", err)
	}

	go func() {
		defer stream.Close()
		if err := engine.PlayFramed(stream); err != nil {
			slog.Error("playback failed", "guildID", guildID, "sound", name, "error", err)
		}
	}()
	return nil
}

// findVoiceChannel locates the voice channel the user currently occupies,
// falling back to the busiest voice channel in the guild.
func findVoiceChannel(s *discordgo.Session, guildID, userID string) (string, error) {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return "", fmt.Errorf("guild %s not in state: %w", guildID, err)
	}

	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID, nil
		}
	}

	if channel := voice.MaxAttendedChannel(guild.Channels); channel != nil {
		return channel.ID, nil
	}
	return "", fmt.Errorf("no voice channel available in guild %s", guildID)
}

// engineFor returns the guild's engine or a user-facing error when nothing
// has played yet.
func (svc *SoundService) engineFor(guildID string) (*playback.Engine, error) {
	engine, ok := svc.Manager.Get(guildID)
	if !ok {
		return nil, &UserError{Message: "Nothing is playing."}
	}
	return engine, nil
}

func MakeInteractionCreateHandler(svc *SoundService) InteractionCreateHandler {
	if svc.HTTPClient == nil {
		svc.HTTPClient = http.DefaultClient
	}

	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand {
			return
		}
		command := i.ApplicationCommandData()
		if command.Name != "sound" || len(command.Options) == 0 {
			return
		}

		response, err := dispatchSound(s, i, svc, command.Options[0])
		if err != nil {
			var userErr *UserError
			if errors.As(err, &userErr) {
				response = presenters.ErrorResponse(userErr.Message)
			} else {
				slog.Error("sound command failed", "subcommand", command.Options[0].Name, "error", err)
				response = presenters.ErrorResponse("Something went wrong.")
			}
		}

		if err := s.InteractionRespond(i.Interaction, response); err != nil {
			slog.Error("Failed to respond to interaction", "error", err)
		}
	}
}

func dispatchSound(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
	svc *SoundService,
	sub *discordgo.ApplicationCommandInteractionDataOption,
) (*discordgo.InteractionResponse, error) {
	ctx := context.Background()
	userID := interactionUserID(i)

	switch sub.Name {
	case "play":
		name := requiredString(sub.Options, "name")
		if err := svc.PlaySound(ctx, s, i.GuildID, userID, name); err != nil {
			return nil, err
		}
		return presenters.AckResponse(fmt.Sprintf("Playing %q.", name)), nil

	case "pause":
		engine, err := svc.engineFor(i.GuildID)
		if err != nil {
			return nil, err
		}
		engine.Pause()
		return presenters.AckResponse("Paused."), nil

	case "resume":
		engine, err := svc.engineFor(i.GuildID)
		if err != nil {
			return nil, err
		}
		engine.Resume()
		return presenters.AckResponse("Resumed."), nil

	case "skip":
		engine, err := svc.engineFor(i.GuildID)
		if err != nil {
			return nil, err
		}
		seconds := requiredNumber(sub.Options, "seconds")
		engine.Skip(seconds)
		return presenters.AckResponse(fmt.Sprintf("Skipping %.2f seconds.", seconds)), nil

	case "stop":
		engine, err := svc.engineFor(i.GuildID)
		if err != nil {
			return nil, err
		}
		engine.Stop()
		return presenters.AckResponse("Stopped."), nil

	case "volume":
		engine, err := svc.engineFor(i.GuildID)
		if err != nil {
			return nil, err
		}
		percent := requiredNumber(sub.Options, "percent")
		if percent < 0 || math.IsNaN(percent) {
			return nil, &UserError{Message: "Volume must be a non-negative percentage."}
		}
		engine.SetVolume(percent / 100)
		return presenters.AckResponse(fmt.Sprintf("Volume set to %.0f%%.", percent)), nil

	case "list":
		sounds, err := svc.Repo.List(ctx, i.GuildID)
		if err != nil {
			return nil, err
		}
		return presenters.BuildListSoundsResponse(sounds), nil

	case "add":
		req, err := CommandToAddSoundRequest(commandAttachments(i), sub.Options)
		if err != nil {
			return nil, &UserError{Message: "Attach exactly one audio file."}
		}
		if err := svc.AddSound(ctx, i.GuildID, req); err != nil {
			return nil, err
		}
		return presenters.AckResponse(fmt.Sprintf("Added %q.", req.Name)), nil

	case "remove":
		name := requiredString(sub.Options, "name")
		if err := svc.RemoveSound(ctx, i.GuildID, name); err != nil {
			return nil, err
		}
		return presenters.AckResponse(fmt.Sprintf("Removed %q.", name)), nil

	case "schedule":
		req, err := CommandToScheduleRequest(sub.Options)
		if err != nil {
			return nil, err
		}
		if err := svc.ScheduleSound(ctx, i.GuildID, req); err != nil {
			return nil, err
		}
		return presenters.AckResponse(fmt.Sprintf("Scheduled %q on %q.", req.Name, req.Cron)), nil
	}

	return nil, fmt.Errorf("unknown subcommand %q", sub.Name)
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func commandAttachments(i *discordgo.InteractionCreate) map[string]*discordgo.MessageAttachment {
	data := i.ApplicationCommandData()
	if data.Resolved == nil {
		return nil
	}
	return data.Resolved.Attachments
}

func requiredString(options []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, option := range options {
		if option.Name == name && option.Type == discordgo.ApplicationCommandOptionString {
			return option.StringValue()
		}
	}
	return ""
}

func requiredChannelID(options []*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	for _, option := range options {
		if option.Name == name && option.Type == discordgo.ApplicationCommandOptionChannel {
			return option.ChannelValue(nil).ID
		}
	}
	return ""
}

func requiredNumber(options []*discordgo.ApplicationCommandInteractionDataOption, name string) float64 {
	for _, option := range options {
		if option.Name == name && option.Type == discordgo.ApplicationCommandOptionNumber {
			return option.FloatValue()
		}
	}
	return 0
}

type Handlers struct {
	Ready             ReadyHandler
	InteractionCreate InteractionCreateHandler
}

func NewSession(token string, handlers Handlers) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	s.AddHandler(handlers.Ready)
	s.AddHandler(handlers.InteractionCreate)

	return s, nil
}

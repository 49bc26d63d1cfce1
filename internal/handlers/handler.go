package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"banner-studio/internal/catalog"
	"banner-studio/internal/credentials"
	"banner-studio/internal/design"
	"banner-studio/internal/mediagroup"
	"banner-studio/internal/session"
)

// Messenger is the part of the Telegram client the handler uses.
type Messenger interface {
	SendText(chatID int64, text string) error
	SendTextWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error
	SendImage(chatID int64, asset design.Asset, caption string) error
	SendTyping(chatID int64)
	AnswerCallback(callbackID, text string) error
	DeleteMessage(chatID int64, messageID int) error
	DownloadAsset(ctx context.Context, fileID string) (design.Asset, error)
}

type Options struct {
	Telegram Messenger
	Designer *design.Service
	Keys     *credentials.Keyring
	Sessions *session.Store
	Logger   *slog.Logger
}

type Handler struct {
	tg         Messenger
	designer   *design.Service
	keys       *credentials.Keyring
	sessions   *session.Store
	logger     *slog.Logger
	aggregator *mediagroup.Aggregator
}

const keyPrompt = "🔑 Send your Gemini API key with /key <key>. Use a key from a project with billing enabled for the best model."

const busyText = "⏳ A generation is already running. Wait for it to finish."

const helpText = "🎨 Banner Studio\n\n" +
	"Build a design brief, then generate ad-ready images.\n\n" +
	"Photos: send product photos as they are. Caption a photo \"ref\" to use it as a layout reference.\n\n" +
	"/key <key> - use your own Gemini API key\n" +
	"/forget - drop your stored key\n" +
	"/ratio [preset] - aspect ratio (square, landscape, cover, portrait, standard, vertical)\n" +
	"/describe <text> - what the design is about\n" +
	"/notes <text> - how to present the product\n" +
	"/headline <text> - headline, rendered exactly\n" +
	"/sub <text> - subheadline, rendered exactly\n" +
	"/typography [n] - headline font style\n" +
	"/count [1-5] - number of style variations\n" +
	"/brief - show the current brief\n" +
	"/generate - create the designs\n" +
	"/images - list generated designs\n" +
	"/edit <n> <instruction> - refine design n\n" +
	"/reset - start a new brief"

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Handler{
		tg:       opts.Telegram,
		designer: opts.Designer,
		keys:     opts.Keys,
		sessions: opts.Sessions,
		logger:   logger,
	}
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil || update.Message.From == nil || update.Message.Chat == nil {
		return nil
	}

	msg := update.Message
	chatID := msg.Chat.ID
	userID := msg.From.ID
	username := msg.From.UserName

	if msg.IsCommand() {
		return h.handleCommand(ctx, chatID, userID, username, msg)
	}

	if len(msg.Photo) > 0 {
		return h.handlePhoto(ctx, chatID, userID, username, msg)
	}

	if strings.TrimSpace(msg.Text) != "" {
		return h.tg.SendText(chatID, "Use /describe to set the brief text, or /help to see all commands.")
	}

	return nil
}

func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	if err := h.addPhotos(ctx, group.ChatID, group.UserID, group.Username, group.Caption, group.FileIDs); err != nil {
		h.logger.Error("media group processing failed", "err", err)
	}
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, userID int64, username string, msg *tgbotapi.Message) error {
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start", "help":
		return h.tg.SendText(chatID, helpText)
	case "key":
		if args == "" {
			return h.tg.SendText(chatID, "Usage: /key <your Gemini API key>")
		}
		h.keys.Set(userID, args)
		if err := h.tg.DeleteMessage(chatID, msg.MessageID); err != nil {
			h.logger.Warn("could not delete key message", "err", err)
		}
		return h.tg.SendText(chatID, "✅ Key saved. Your message with the key was removed from the chat.")
	case "forget":
		h.keys.Forget(userID)
		return h.tg.SendText(chatID, "✅ Your key was removed.")
	case "ratio":
		if args == "" {
			return h.tg.SendTextWithKeyboard(chatID, "Choose an aspect ratio:", ratioKeyboard(userID))
		}
		ratio, err := design.ParseAspectRatio(args)
		if err != nil {
			return h.tg.SendText(chatID, "❌ "+err.Error())
		}
		h.sessions.UpdateBrief(userID, username, func(b *design.Brief) { b.AspectRatio = ratio })
		return h.tg.SendText(chatID, "✅ Aspect ratio: "+catalog.AspectLabel(ratio))
	case "describe":
		h.sessions.UpdateBrief(userID, username, func(b *design.Brief) { b.Description = args })
		return h.tg.SendText(chatID, "✅ Description updated.")
	case "notes":
		h.sessions.UpdateBrief(userID, username, func(b *design.Brief) { b.ProductNotes = args })
		return h.tg.SendText(chatID, "✅ Product notes updated.")
	case "headline":
		h.sessions.UpdateBrief(userID, username, func(b *design.Brief) { b.Headline = args })
		return h.tg.SendText(chatID, "✅ Headline updated.")
	case "sub":
		h.sessions.UpdateBrief(userID, username, func(b *design.Brief) { b.Subheadline = args })
		return h.tg.SendText(chatID, "✅ Subheadline updated.")
	case "typography":
		if args == "" {
			return h.tg.SendTextWithKeyboard(chatID, "Choose the headline typography:", typographyKeyboard(userID))
		}
		style, ok := catalog.HeadingStyle(args)
		if !ok {
			return h.tg.SendText(chatID, "❌ Unknown typography. Send /typography to pick from the list.")
		}
		h.sessions.UpdateBrief(userID, username, func(b *design.Brief) { b.HeadlineStyle = style })
		return h.tg.SendText(chatID, "✅ Typography: "+style)
	case "count":
		if args == "" {
			return h.tg.SendTextWithKeyboard(chatID, "How many style variations?", countKeyboard(userID))
		}
		n, err := parseCount(args)
		if err != nil {
			return h.tg.SendText(chatID, "❌ "+err.Error())
		}
		h.sessions.UpdateBrief(userID, username, func(b *design.Brief) { b.Variations = n })
		return h.tg.SendText(chatID, fmt.Sprintf("✅ Variations: %d", n))
	case "brief":
		return h.tg.SendText(chatID, briefSummary(h.sessions.Snapshot(userID, username).Brief))
	case "generate":
		return h.generate(ctx, chatID, userID, username)
	case "images":
		return h.listImages(chatID, userID, username)
	case "edit":
		return h.edit(ctx, chatID, userID, username, args)
	case "reset":
		h.sessions.Reset(userID)
		return h.tg.SendText(chatID, "✅ Brief and images cleared.")
	default:
		return h.tg.SendText(chatID, "❌ Unknown command. Use /help.")
	}
}

func (h *Handler) handlePhoto(ctx context.Context, chatID int64, userID int64, username string, msg *tgbotapi.Message) error {
	photo := msg.Photo[len(msg.Photo)-1]
	fileID := photo.FileID

	if msg.MediaGroupID != "" && h.aggregator != nil {
		h.aggregator.Add(mediagroup.Item{
			ChatID:       chatID,
			UserID:       userID,
			Username:     username,
			MediaGroupID: msg.MediaGroupID,
			Caption:      msg.Caption,
			FileID:       fileID,
		})
		return nil
	}

	return h.addPhotos(ctx, chatID, userID, username, msg.Caption, []string{fileID})
}

func (h *Handler) addPhotos(ctx context.Context, chatID int64, userID int64, username, caption string, fileIDs []string) error {
	if len(fileIDs) == 0 {
		return nil
	}

	assets := make([]design.Asset, len(fileIDs))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, fileID := range fileIDs {
		eg.Go(func() error {
			asset, err := h.tg.DownloadAsset(egCtx, fileID)
			if err != nil {
				return err
			}
			assets[i] = asset
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		h.logger.Error("photo download failed", "err", err)
		return h.tg.SendText(chatID, "❌ Could not download the photo. Please send it again.")
	}

	role := roleFromCaption(caption)
	refs, products := h.sessions.AddAssets(userID, username, role, assets...)
	return h.tg.SendText(chatID, fmt.Sprintf("✅ Added %d %s image(s). Brief now has %d reference and %d product image(s).",
		len(assets), role, refs, products))
}

func (h *Handler) generate(ctx context.Context, chatID int64, userID int64, username string) error {
	brief := h.sessions.Snapshot(userID, username).Brief
	if !hasContent(brief) {
		return h.tg.SendText(chatID, "Add a description with /describe or send product photos first.")
	}
	if err := brief.Validate(); err != nil {
		return h.tg.SendText(chatID, "❌ "+err.Error())
	}

	if !h.sessions.TryBegin(userID) {
		return h.tg.SendText(chatID, busyText)
	}
	defer h.sessions.End(userID)

	styles := catalog.StylesFor(brief.Variations)
	asked := false
	svc := h.designer.WithCredentials(h.keys.Gate(userID, func() { asked = true }))

	h.tg.SendTyping(chatID)
	_ = h.tg.SendText(chatID, fmt.Sprintf("🎨 Generating %d design(s). This can take a few minutes when the service is busy.", len(styles)))

	err := svc.GenerateVariations(ctx, brief, styles, func(i int, res design.Result) error {
		n := h.sessions.AddImage(userID, username, session.Image{Result: res, AspectRatio: brief.AspectRatio})
		asset, err := res.Asset()
		if err != nil {
			return err
		}
		if err := h.tg.SendImage(chatID, asset, fmt.Sprintf("#%d · %s", n, res.Style)); err != nil {
			return err
		}
		if i+1 < len(styles) {
			h.tg.SendTyping(chatID)
		}
		return nil
	})
	if err != nil {
		return h.reportError(chatID, "generate", err, asked)
	}

	return h.tg.SendText(chatID, "Done. Use /edit <number> <instruction> to refine a design.")
}

func (h *Handler) edit(ctx context.Context, chatID int64, userID int64, username, args string) error {
	n, instruction, err := parseEditArgs(args)
	if err != nil {
		return h.tg.SendText(chatID, "❌ "+err.Error())
	}

	img, ok := h.sessions.Image(userID, n)
	if !ok {
		return h.tg.SendText(chatID, fmt.Sprintf("❌ There is no design #%d. Use /images to see the list.", n))
	}
	source, err := img.Result.Asset()
	if err != nil {
		return h.tg.SendText(chatID, "❌ That design can no longer be edited.")
	}

	if !h.sessions.TryBegin(userID) {
		return h.tg.SendText(chatID, busyText)
	}
	defer h.sessions.End(userID)

	asked := false
	svc := h.designer.WithCredentials(h.keys.Gate(userID, func() { asked = true }))

	h.tg.SendTyping(chatID)
	res, err := svc.Edit(ctx, source, instruction, img.AspectRatio)
	if err != nil {
		return h.reportError(chatID, "edit", err, asked)
	}
	res.Style = design.EditedStyle(img.Result.Style)

	edited := h.sessions.AddImage(userID, username, session.Image{Result: res, AspectRatio: img.AspectRatio})
	asset, err := res.Asset()
	if err != nil {
		return err
	}
	return h.tg.SendImage(chatID, asset, fmt.Sprintf("#%d · %s", edited, res.Style))
}

func (h *Handler) listImages(chatID int64, userID int64, username string) error {
	sess := h.sessions.Snapshot(userID, username)
	if len(sess.Images) == 0 {
		return h.tg.SendText(chatID, "No designs yet. Use /generate.")
	}

	var sb strings.Builder
	sb.WriteString("Your designs:\n")
	for i, img := range sess.Images {
		fmt.Fprintf(&sb, "#%d %s (%s)\n", i+1, img.Result.Style, img.AspectRatio)
	}
	return h.tg.SendText(chatID, strings.TrimSpace(sb.String()))
}

func (h *Handler) reportError(chatID int64, op string, err error, askedForKey bool) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	h.logger.Error(op+" failed", "kind", design.KindOf(err), "err", err)

	text := "❌ " + userMessage(err)
	if askedForKey {
		text += "\n\n" + keyPrompt
	}
	return h.tg.SendText(chatID, text)
}

func userMessage(err error) string {
	var derr *design.Error
	if errors.As(err, &derr) {
		return derr.Error()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "The request took too long. Please try again."
	}
	return "Something went wrong: " + err.Error()
}

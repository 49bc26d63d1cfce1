package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"banner-studio/internal/catalog"
	"banner-studio/internal/design"
)

// Callback data is "bs:<owner>:<action>:<value>". The value may itself
// contain colons (aspect ratios do).
const callbackPrefix = "bs"

const (
	actionRatio      = "ratio"
	actionCount      = "count"
	actionTypography = "type"
)

func callbackData(owner int64, action, value string) string {
	return fmt.Sprintf("%s:%d:%s:%s", callbackPrefix, owner, action, value)
}

func ratioKeyboard(owner int64) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, opt := range catalog.AspectRatios() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(opt.Name, callbackData(owner, actionRatio, opt.Key)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func countKeyboard(owner int64) tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	for n := design.MinVariations; n <= design.MaxVariations; n++ {
		v := strconv.Itoa(n)
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(v, callbackData(owner, actionCount, v)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(row)
}

func typographyKeyboard(owner int64) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, name := range catalog.HeadingStyles() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(name, callbackData(owner, actionTypography, strconv.Itoa(i+1))),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func (h *Handler) handleCallback(_ context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.From == nil {
		return nil
	}
	parts := strings.SplitN(strings.TrimSpace(q.Data), ":", 4)
	if len(parts) != 4 || parts[0] != callbackPrefix {
		return nil
	}

	ownerID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil
	}
	if ownerID != q.From.ID {
		return h.tg.AnswerCallback(q.ID, "This menu belongs to someone else.")
	}

	action, value := parts[2], parts[3]
	var reply string

	switch action {
	case actionRatio:
		ratio, err := design.ParseAspectRatio(value)
		if err != nil {
			return h.tg.AnswerCallback(q.ID, err.Error())
		}
		h.sessions.UpdateBrief(ownerID, q.From.UserName, func(b *design.Brief) { b.AspectRatio = ratio })
		reply = "Aspect ratio: " + catalog.AspectLabel(ratio)
	case actionCount:
		n, err := parseCount(value)
		if err != nil {
			return h.tg.AnswerCallback(q.ID, err.Error())
		}
		h.sessions.UpdateBrief(ownerID, q.From.UserName, func(b *design.Brief) { b.Variations = n })
		reply = fmt.Sprintf("Variations: %d", n)
	case actionTypography:
		style, ok := catalog.HeadingStyle(value)
		if !ok {
			return h.tg.AnswerCallback(q.ID, "Unknown typography.")
		}
		h.sessions.UpdateBrief(ownerID, q.From.UserName, func(b *design.Brief) { b.HeadlineStyle = style })
		reply = "Typography: " + style
	default:
		return nil
	}

	if err := h.tg.AnswerCallback(q.ID, reply); err != nil {
		return err
	}
	if q.Message != nil && q.Message.Chat != nil {
		return h.tg.SendText(q.Message.Chat.ID, "✅ "+reply)
	}
	return nil
}

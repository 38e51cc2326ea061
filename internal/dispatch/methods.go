package dispatch

import (
	"context"
	"time"

	"github.com/hrygo/botgateway/internal/adminrest"
	"github.com/hrygo/botgateway/internal/botapi"
	"github.com/hrygo/botgateway/internal/callbackstore"
	"github.com/hrygo/botgateway/internal/mtclient"
)

func (d *Dispatcher) getMe(ctx context.Context, client mtclient.Client) (interface{}, *gatewayError) {
	me, err := client.GetMe(ctx)
	if err != nil {
		return nil, internalError(err)
	}
	return &botapi.User{
		ID:                      me.ID,
		IsBot:                   me.IsBot,
		FirstName:               me.FirstName,
		UserName:                me.Username,
		CanJoinGroups:           true,
		CanReadAllGroupMessages: false,
		SupportsInlineQueries:   false,
	}, nil
}

func (d *Dispatcher) sendMessage(ctx context.Context, client mtclient.Client, me *mtclient.Me, params Params) (interface{}, *gatewayError) {
	chatID, ok := params.int64("chat_id")
	if !ok {
		return nil, badRequest("Bad Request: chat_id is required")
	}
	text, ok := params.str("text")
	if !ok {
		return nil, badRequest("Bad Request: text is required")
	}
	if chatID == me.ID {
		return nil, badRequest("Bad Request: can't send message to self")
	}

	var buttons [][]adminrest.Button
	var outMarkup *botapi.InlineKeyboardMarkup
	if rm, ok := params.rawMap("reply_markup"); ok {
		if rows, ok := rm["inline_keyboard"].([]interface{}); ok {
			buttons = make([][]adminrest.Button, 0, len(rows))
			outRows := make([][]botapi.InlineKeyboardButton, 0, len(rows))
			for _, rawRow := range rows {
				row, ok := rawRow.([]interface{})
				if !ok {
					continue
				}
				var adminRow []adminrest.Button
				var outRow []botapi.InlineKeyboardButton
				for _, rawBtn := range row {
					btn, ok := rawBtn.(map[string]interface{})
					if !ok {
						continue
					}
					btnText, _ := btn["text"].(string)
					var urlPtr, cbPtr *string
					if u, ok := btn["url"].(string); ok && u != "" {
						urlPtr = &u
					}
					if cb, ok := btn["callback_data"].(string); ok && cb != "" {
						cbPtr = &cb
					}
					adminRow = append(adminRow, adminrest.Button{Text: btnText, URL: urlPtr, CallbackData: cbPtr})
					outRow = append(outRow, botapi.InlineKeyboardButton{Text: btnText, URL: urlPtr, CallbackData: cbPtr})
				}
				buttons = append(buttons, adminRow)
				outRows = append(outRows, outRow)
			}
			outMarkup = &botapi.InlineKeyboardMarkup{InlineKeyboard: outRows}
		}
	}

	resp, err := d.admin.SendMessage(ctx, adminrest.SendMessageRequest{
		FromUserID: me.ID,
		ToUserID:   chatID,
		Message:    text,
		Silent:     params.boolWithDefault("disable_notification", false),
		Buttons:    buttons,
	})
	if err != nil {
		return nil, adminRestError(err)
	}

	chatEntity, err := client.GetEntity(ctx, chatID)
	if err != nil {
		return nil, internalError(err)
	}

	msg := &botapi.Message{
		MessageID: resp.MessageID,
		From: &botapi.User{
			ID:        me.ID,
			IsBot:     me.IsBot,
			FirstName: me.FirstName,
			UserName:  me.Username,
		},
		Date: int(time.Now().Unix()),
		Chat: &botapi.Chat{
			ID:        chatEntity.ID,
			FirstName: chatEntity.FirstName,
			UserName:  chatEntity.Username,
			Type:      botapi.ChatType(chatEntity.FirstName != ""),
		},
		Text: text,
	}
	if outMarkup != nil {
		msg.ReplyMarkup = outMarkup
	}
	return msg, nil
}

func (d *Dispatcher) deleteMessage(ctx context.Context, client mtclient.Client, params Params) (interface{}, *gatewayError) {
	chatID, ok := params.int64("chat_id")
	if !ok {
		return nil, badRequest("Bad Request: chat_id is required")
	}
	msgID := params.intWithDefault("message_id", -1)
	if msgID < 0 {
		return nil, badRequest("Bad Request: message_id is required")
	}
	if err := client.DeleteMessages(ctx, chatID, []int{msgID}); err != nil {
		return nil, internalError(err)
	}
	return true, nil
}

func (d *Dispatcher) editMessageText(ctx context.Context, client mtclient.Client, me *mtclient.Me, params Params) (interface{}, *gatewayError) {
	chatID, ok := params.int64("chat_id")
	if !ok {
		return nil, badRequest("Bad Request: chat_id is required")
	}
	msgID := params.intWithDefault("message_id", -1)
	if msgID < 0 {
		return nil, badRequest("Bad Request: message_id is required")
	}
	text, ok := params.str("text")
	if !ok {
		return nil, badRequest("Bad Request: text is required")
	}

	current, err := client.GetMessage(ctx, chatID, msgID)
	if err == nil && current != nil && current.Text == text {
		return nil, badRequest("Bad Request: message is not modified")
	}

	if err := client.EditMessage(ctx, chatID, msgID, text); err != nil {
		return nil, internalError(err)
	}

	chatEntity, err := client.GetEntity(ctx, chatID)
	if err != nil {
		return nil, internalError(err)
	}

	return &botapi.Message{
		MessageID: msgID,
		From: &botapi.User{
			ID:        me.ID,
			IsBot:     me.IsBot,
			FirstName: me.FirstName,
			UserName:  me.Username,
		},
		Date: int(time.Now().Unix()),
		Chat: &botapi.Chat{
			ID:        chatEntity.ID,
			FirstName: chatEntity.FirstName,
			UserName:  chatEntity.Username,
			Type:      botapi.ChatType(chatEntity.FirstName != ""),
		},
		Text: text,
	}, nil
}

func (d *Dispatcher) getUpdates(ctx context.Context, botID int64, params Params) interface{} {
	offset := params.intWithDefault("offset", 0)
	limit := params.intWithDefault("limit", maxUpdatesLimit)
	if limit > maxUpdatesLimit {
		limit = maxUpdatesLimit
	}
	timeoutSec := params.intWithDefault("timeout", 0)
	timeout := time.Duration(timeoutSec) * time.Second
	if timeout > maxTimeout {
		timeout = maxTimeout
	}

	updates := d.updatesMu.WaitForUpdates(ctx, botID, offset, limit, timeout)
	if updates == nil {
		return []botapi.Update{}
	}
	return updates
}

func (d *Dispatcher) answerCallbackQuery(ctx context.Context, params Params) (interface{}, *gatewayError) {
	queryID, ok := params.str("callback_query_id")
	if !ok {
		return nil, badRequest("Bad Request: callback_query_id is required")
	}
	text, _ := params.str("text")
	url, _ := params.str("url")

	rec := &callbackstore.Record{
		QueryID:   queryID,
		Alert:     params.boolWithDefault("show_alert", false),
		CacheTime: params.intWithDefault("cache_time", 0),
	}
	if text != "" {
		rec.Message = &text
	}
	if url != "" {
		rec.URL = &url
	}

	if err := d.callbacks.Put(ctx, rec); err != nil {
		return nil, internalError(err)
	}
	return true, nil
}

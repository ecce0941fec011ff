package tgui

import "errors"

// MaxCallbackDataLen is Telegram's callback_data size limit in bytes.
const MaxCallbackDataLen = 64

// MaxMessageLen is a safe budget under Telegram's 4096 character limit.
const MaxMessageLen = 4000

// MaxCaptionLen is Telegram's photo caption limit.
const MaxCaptionLen = 1024

var (
	ErrCallbackDataTooLong = errors.New("tgui: callback_data too long")
	ErrCallbackData        = errors.New("tgui: malformed callback_data")
)

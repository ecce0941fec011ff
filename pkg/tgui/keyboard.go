package tgui

import tele "gopkg.in/telebot.v4"

// Inline is an inline keyboard under construction.
type Inline struct {
	rows [][]tele.Btn
}

// Btn is a callback button; build data with ActionData.
func Btn(text, data string) tele.Btn { return tele.Btn{Text: text, Data: data} }

// ConfirmInline is a one-row keyboard holding an accept and a reject button.
func ConfirmInline(yes, no tele.Btn) *Inline {
	return &Inline{rows: [][]tele.Btn{{yes, no}}}
}

// Markup renders the keyboard for the Telegram adapter.
func (k *Inline) Markup() *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(k.rows))
	for _, r := range k.rows {
		rows = append(rows, rm.Row(r...))
	}
	rm.Inline(rows...)
	return rm
}

package tgui

import (
	"fmt"
	"strconv"
)

// ActionData formats callback data as "<prefix><id>", e.g. "admin_approve_42".
func ActionData(prefix string, id int64) (string, error) {
	s := prefix + strconv.FormatInt(id, 10)
	if len(s) > MaxCallbackDataLen {
		return "", ErrCallbackDataTooLong
	}
	return s, nil
}

// ParseID parses the id part of callback data. Only the canonical decimal
// form is accepted: no plus sign, no leading zeros, no surrounding space.
func ParseID(payload string) (int64, error) {
	id, err := strconv.ParseInt(payload, 10, 64)
	if err != nil || strconv.FormatInt(id, 10) != payload {
		return 0, fmt.Errorf("%w: id %q", ErrCallbackData, payload)
	}
	return id, nil
}

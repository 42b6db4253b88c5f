package types

import "strings"

// StockEventPayload is the JSON body of a stock notification message on the
// intake queue. Producers send at least one of UserID/GuestID plus the item
// identifiers; everything else is optional context.
type StockEventPayload struct {
	UserID     string `json:"userId"`
	GuestID    string `json:"guestId"`
	ItemID     int64  `json:"itemId"`
	SKU        string `json:"skuid"`
	Screen     string `json:"screen"`
	SourceType string `json:"sourceType"`
	SourceName string `json:"sourceName"`
}

// Validate checks the payload for the fields required to build an event.
// Whitespace-only values count as missing. It returns a typed AppError naming
// the first missing field.
func (p *StockEventPayload) Validate() error {
	if strings.TrimSpace(p.UserID) == "" && strings.TrimSpace(p.GuestID) == "" {
		return NewAppError(ErrCodeValidationMissingField, "message has neither userId nor guestId", nil)
	}
	if p.ItemID == 0 {
		return NewAppError(ErrCodeValidationMissingField, "message is missing itemId", nil)
	}
	if strings.TrimSpace(p.SKU) == "" {
		return NewAppError(ErrCodeValidationMissingField, "message is missing skuid", nil)
	}
	return nil
}

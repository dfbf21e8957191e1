package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Event is a catalog entry owned by the events service. Only ID, Price and
// Capacity are interpreted here; the upstream document is kept in Raw and
// rendered unchanged.
type Event struct {
	ID       int64           `json:"id"`
	Price    decimal.Decimal `json:"price"`
	Capacity int             `json:"capacity"`

	Raw json.RawMessage `json:"-"`
}

func (e *Event) UnmarshalJSON(b []byte) error {
	type plain Event
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	*e = Event(p)
	e.Raw = append(json.RawMessage(nil), b...)
	return nil
}

func (e Event) MarshalJSON() ([]byte, error) {
	if len(e.Raw) > 0 {
		return e.Raw, nil
	}
	type plain Event
	return json.Marshal(plain(e))
}

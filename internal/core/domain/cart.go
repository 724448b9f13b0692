package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID       string
	Name     string
	Price    decimal.Decimal
	ImageRef string
}

type CartLine struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"price"`
	ImageRef  string          `json:"image"`
	Quantity  int             `json:"quantity"`
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func NewLine(p Product) CartLine {
	return CartLine{
		ID:        p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		ImageRef:  p.ImageRef,
		Quantity:  1,
	}
}

// Snapshot is an immutable view of a cart. Totals are always computed from the lines.
type Snapshot struct {
	lines  []CartLine
	origin string
}

func NewSnapshot(lines []CartLine) Snapshot {
	cp := make([]CartLine, len(lines))
	copy(cp, lines)
	return Snapshot{lines: cp}
}

// WithOrigin returns a copy tagged with the id of the tab that wrote it.
func (s Snapshot) WithOrigin(tabID string) Snapshot {
	s.origin = tabID
	return s
}

// Origin is the writing tab's id, empty when unknown.
func (s Snapshot) Origin() string {
	return s.origin
}

func (s Snapshot) Lines() []CartLine {
	cp := make([]CartLine, len(s.lines))
	copy(cp, s.lines)
	return cp
}

func (s Snapshot) Len() int {
	return len(s.lines)
}

func (s Snapshot) Line(id string) (CartLine, bool) {
	for _, l := range s.lines {
		if l.ID == id {
			return l, true
		}
	}
	return CartLine{}, false
}

func (s Snapshot) TotalItems() int {
	total := 0
	for _, l := range s.lines {
		total += l.Quantity
	}
	return total
}

func (s Snapshot) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, l := range s.lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// PersistedCart is the layout of the durable slot: {"state":{"items":[...]},"version":0}.
// WrittenBy lets a tab recognise the storage signals caused by its own writes.
type PersistedCart struct {
	State     PersistedState `json:"state"`
	Version   int            `json:"version"`
	WrittenBy string         `json:"writtenBy,omitempty"`
}

type PersistedState struct {
	Items []CartLine `json:"items"`
}

func EncodePersisted(s Snapshot) ([]byte, error) {
	items := s.Lines()
	return json.Marshal(PersistedCart{State: PersistedState{Items: items}, WrittenBy: s.origin})
}

func DecodePersisted(data []byte) (Snapshot, error) {
	var pc PersistedCart
	if err := json.Unmarshal(data, &pc); err != nil {
		return Snapshot{}, fmt.Errorf("decode persisted cart: %w", err)
	}
	return NewSnapshot(pc.State.Items).WithOrigin(pc.WrittenBy), nil
}

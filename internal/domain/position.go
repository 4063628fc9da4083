package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
	"github.com/vmihailenco/msgpack/v5"
)

// Position is one asset's accumulated state within a portfolio
type Position struct {
	Asset          Asset                  `json:"asset"`
	Quantity       QuantityValues         `json:"quantityValues"`
	Money          map[Frame]*MoneyValues `json:"moneyValues"`
	CashFlows      []CashFlow             `json:"cashFlows,omitempty"`
	FirstTradeDate string                 `json:"firstTradeDate,omitempty"`
	LastTradeDate  string                 `json:"lastTradeDate,omitempty"`
}

// NewPosition creates a zero-based position for asset
func NewPosition(asset Asset) *Position {
	return &Position{
		Asset: asset,
		Money: make(map[Frame]*MoneyValues, len(Frames)),
	}
}

// Frame returns the money values for frame f, creating them in currency ccy
// on first access. A frame keeps the currency it was created with; asking
// for a different one is an error.
func (p *Position) Frame(f Frame, ccy Currency) (*MoneyValues, error) {
	if p.Money == nil {
		p.Money = make(map[Frame]*MoneyValues, len(Frames))
	}
	mv, ok := p.Money[f]
	if !ok {
		mv = NewMoneyValues(ccy)
		p.Money[f] = mv
		return mv, nil
	}
	if mv.Currency == "" {
		mv.Currency = ccy
	}
	if mv.Currency != ccy {
		return nil, NewBusinessError("position %s: %s frame is in %s, not %s",
			p.Asset.ID, f, mv.Currency, ccy)
	}
	return mv, nil
}

// Values returns the money values for frame f, or nil if never touched
func (p *Position) Values(f Frame) *MoneyValues {
	if p.Money == nil {
		return nil
	}
	return p.Money[f]
}

// Touch records trade activity on date
func (p *Position) Touch(date string) {
	if p.FirstTradeDate == "" || date < p.FirstTradeDate {
		p.FirstTradeDate = date
	}
	if date > p.LastTradeDate {
		p.LastTradeDate = date
	}
}

// Positions is a portfolio's ledger as at a given date. Positions are kept
// in the order they were first added.
type Positions struct {
	Portfolio       Portfolio
	AsAt            string
	MixedCurrencies bool
	Partial         bool
	Totals          map[Frame]*Totals

	positions map[string]*Position
	order     []string
}

// NewPositions creates an empty ledger
func NewPositions(portfolio Portfolio, asAt string) *Positions {
	return &Positions{
		Portfolio: portfolio,
		AsAt:      asAt,
		Totals:    make(map[Frame]*Totals, len(Frames)),
		positions: make(map[string]*Position),
	}
}

// Get returns the position for asset, creating a zero-based one if needed
func (ps *Positions) Get(asset Asset) *Position {
	if p, ok := ps.positions[asset.ID]; ok {
		return p
	}
	p := NewPosition(asset)
	ps.Add(p)
	return p
}

// Add inserts or replaces a position. Replacing keeps the original slot.
func (ps *Positions) Add(p *Position) {
	if ps.positions == nil {
		ps.positions = make(map[string]*Position)
	}
	if _, ok := ps.positions[p.Asset.ID]; !ok {
		ps.order = append(ps.order, p.Asset.ID)
	}
	ps.positions[p.Asset.ID] = p
}

// Find looks a position up by asset id
func (ps *Positions) Find(assetID string) (*Position, bool) {
	p, ok := ps.positions[assetID]
	return p, ok
}

// List returns positions in insertion order
func (ps *Positions) List() []*Position {
	out := make([]*Position, 0, len(ps.order))
	for _, id := range ps.order {
		out = append(out, ps.positions[id])
	}
	return out
}

// Assets returns every held asset in insertion order
func (ps *Positions) Assets() []Asset {
	out := make([]Asset, 0, len(ps.order))
	for _, id := range ps.order {
		out = append(out, ps.positions[id].Asset)
	}
	return out
}

// Len returns the number of positions
func (ps *Positions) Len() int {
	return len(ps.order)
}

// IsEmpty reports whether the ledger has no positions
func (ps *Positions) IsEmpty() bool {
	return len(ps.order) == 0
}

// Total returns the totals for frame f, creating them if needed
func (ps *Positions) Total(f Frame) *Totals {
	if ps.Totals == nil {
		ps.Totals = make(map[Frame]*Totals, len(Frames))
	}
	t, ok := ps.Totals[f]
	if !ok {
		t = &Totals{Currency: ps.frameCurrency(f)}
		ps.Totals[f] = t
	}
	return t
}

// ResetTotals recomputes every frame's totals from the positions, summing in
// insertion order. IRR is carried over; it is set by valuation.
func (ps *Positions) ResetTotals() {
	tradeCurrencies := make(map[Currency]struct{})
	for _, p := range ps.List() {
		if mv := p.Values(FrameTrade); mv != nil && !p.Asset.IsCash() {
			tradeCurrencies[mv.Currency] = struct{}{}
		}
	}
	ps.MixedCurrencies = len(tradeCurrencies) > 1

	for _, f := range Frames {
		prev := ps.Totals[f]
		t := &Totals{Currency: ps.frameCurrency(f)}
		if prev != nil {
			t.IRR = prev.IRR
		}
		for _, p := range ps.List() {
			mv := p.Values(f)
			if mv == nil {
				continue
			}
			t.MarketValue = t.MarketValue.Add(mv.MarketValue)
			t.Purchases = t.Purchases.Add(mv.Purchases)
			t.Sales = t.Sales.Add(mv.Sales)
			t.Gain = t.Gain.Add(mv.TotalGain)
			t.Income = t.Income.Add(mv.Dividends)
		}
		if ps.Totals == nil {
			ps.Totals = make(map[Frame]*Totals, len(Frames))
		}
		ps.Totals[f] = t
	}
}

func (ps *Positions) frameCurrency(f Frame) Currency {
	switch f {
	case FramePortfolio:
		return ps.Portfolio.Currency
	case FrameBase:
		return ps.Portfolio.Base
	}
	var ccy Currency
	for _, p := range ps.List() {
		mv := p.Values(FrameTrade)
		if mv == nil || p.Asset.IsCash() {
			continue
		}
		if ccy != "" && ccy != mv.Currency {
			return ""
		}
		ccy = mv.Currency
	}
	return ccy
}

// MarketValue is shorthand for the market value total of frame f
func (ps *Positions) MarketValue(f Frame) decimal.Decimal {
	if t, ok := ps.Totals[f]; ok {
		return t.MarketValue
	}
	return decimal.Zero
}

type positionsDocument struct {
	Portfolio       Portfolio         `json:"portfolio" msgpack:"portfolio"`
	AsAt            string            `json:"asAt" msgpack:"asAt"`
	MixedCurrencies bool              `json:"mixedCurrencies" msgpack:"mixedCurrencies"`
	Partial         bool              `json:"partial" msgpack:"partial"`
	Totals          map[Frame]*Totals `json:"totals" msgpack:"totals"`
	Positions       []*Position       `json:"positions" msgpack:"positions"`
}

func (ps *Positions) document() positionsDocument {
	return positionsDocument{
		Portfolio:       ps.Portfolio,
		AsAt:            ps.AsAt,
		MixedCurrencies: ps.MixedCurrencies,
		Partial:         ps.Partial,
		Totals:          ps.Totals,
		Positions:       ps.List(),
	}
}

func (ps *Positions) load(doc positionsDocument) {
	*ps = *NewPositions(doc.Portfolio, doc.AsAt)
	ps.MixedCurrencies = doc.MixedCurrencies
	ps.Partial = doc.Partial
	if doc.Totals != nil {
		ps.Totals = doc.Totals
	}
	for _, p := range doc.Positions {
		if p == nil {
			continue
		}
		if p.Money == nil {
			p.Money = make(map[Frame]*MoneyValues, len(Frames))
		}
		ps.Add(p)
	}
}

// MarshalJSON encodes positions as an ordered array
func (ps *Positions) MarshalJSON() ([]byte, error) {
	return json.Marshal(ps.document())
}

// UnmarshalJSON restores insertion order from the encoded array
func (ps *Positions) UnmarshalJSON(data []byte) error {
	var doc positionsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	ps.load(doc)
	return nil
}

var (
	_ msgpack.CustomEncoder = (*Positions)(nil)
	_ msgpack.CustomDecoder = (*Positions)(nil)
)

// EncodeMsgpack encodes positions as an ordered array
func (ps *Positions) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(ps.document())
}

// DecodeMsgpack restores insertion order from the encoded array
func (ps *Positions) DecodeMsgpack(dec *msgpack.Decoder) error {
	var doc positionsDocument
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	ps.load(doc)
	return nil
}

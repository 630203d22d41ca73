// internal/core/domain/orderbook/book.go
package orderbook

import "sort"

// Level - один ценовой уровень стакана
type Level struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Total    float64 `json:"total"`
}

// Book - текущее состояние стакана одного символа.
// Сортировка поддерживается синхронно внутри мутаций:
// потребитель никогда не видит частично отсортированную сторону.
type Book struct {
	Symbol        string  `json:"symbol"`
	Bids          []Level `json:"bids"`
	Asks          []Level `json:"asks"`
	Timestamp     int64   `json:"timestamp"`
	Spread        float64 `json:"spread"`
	SpreadPercent float64 `json:"spreadPercent"`
}

// recalcSpread пересчитывает спред по лучшим уровням
func (b *Book) recalcSpread() {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		b.Spread = 0
		b.SpreadPercent = 0
		return
	}
	bestBid := b.Bids[0].Price
	bestAsk := b.Asks[0].Price
	b.Spread = bestAsk - bestBid
	b.SpreadPercent = b.Spread / bestAsk * 100
}

// applyDelta применяет точечное изменение одного уровня:
// нулевое количество удаляет уровень, совпадение цены заменяет на месте,
// новая цена вставляется с пересортировкой стороны.
func (b *Book) applyDelta(side string, price, quantity float64, timestamp int64) {
	var entries []Level
	if side == "bid" {
		entries = b.Bids
	} else {
		entries = b.Asks
	}

	index := -1
	for i, e := range entries {
		if e.Price == price {
			index = i
			break
		}
	}

	switch {
	case quantity == 0:
		if index != -1 {
			entries = append(entries[:index], entries[index+1:]...)
		}
	case index != -1:
		entries[index] = Level{Price: price, Quantity: quantity, Total: price * quantity}
	default:
		entries = append(entries, Level{Price: price, Quantity: quantity, Total: price * quantity})
		if side == "bid" {
			sort.Slice(entries, func(i, j int) bool { return entries[i].Price > entries[j].Price })
		} else {
			sort.Slice(entries, func(i, j int) bool { return entries[i].Price < entries[j].Price })
		}
	}

	if side == "bid" {
		b.Bids = entries
	} else {
		b.Asks = entries
	}
	b.Timestamp = timestamp
	b.recalcSpread()
}

// clone возвращает глубокую копию стакана для отдачи потребителям
func (b *Book) clone() *Book {
	copy := &Book{
		Symbol:        b.Symbol,
		Bids:          make([]Level, len(b.Bids)),
		Asks:          make([]Level, len(b.Asks)),
		Timestamp:     b.Timestamp,
		Spread:        b.Spread,
		SpreadPercent: b.SpreadPercent,
	}
	for i, l := range b.Bids {
		copy.Bids[i] = l
	}
	for i, l := range b.Asks {
		copy.Asks[i] = l
	}
	return copy
}

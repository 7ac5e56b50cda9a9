package repo

import (
	"encoding/json"
	"fmt"

	"lsp-backend/internal/domain"
)

// Orders are stored as their JSON document next to a few indexed columns.

func encodeOrder(o *domain.Order) ([]byte, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode order %s: %w", o.OrderID, err)
	}
	return b, nil
}

func decodeOrder(b []byte) (*domain.Order, error) {
	var o domain.Order
	if err := json.Unmarshal(b, &o); err != nil {
		return nil, fmt.Errorf("decode order: %w", err)
	}
	return &o, nil
}

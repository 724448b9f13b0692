package domain

import (
	"errors"
	"fmt"
)

// EnvelopeVersion is the newest envelope layout this build understands.
const EnvelopeVersion = 1

type MessageType string

const MessageCartUpdate MessageType = "CART_UPDATE"

var (
	ErrMalformedEnvelope   = errors.New("malformed sync envelope")
	ErrUnsupportedEnvelope = errors.New("unsupported sync envelope")
)

type SyncEnvelope struct {
	Version   int         `json:"version"`
	Type      MessageType `json:"type"`
	Items     []CartLine  `json:"items"`
	Timestamp int64       `json:"timestamp"`
	TabID     string      `json:"tabId"`
}

func NewCartUpdate(tabID string, s Snapshot, timestampMillis int64) SyncEnvelope {
	return SyncEnvelope{
		Version:   EnvelopeVersion,
		Type:      MessageCartUpdate,
		Items:     s.Lines(),
		Timestamp: timestampMillis,
		TabID:     tabID,
	}
}

func (e SyncEnvelope) Validate() error {
	if e.Version < 1 || e.Version > EnvelopeVersion {
		return fmt.Errorf("%w: version %d", ErrUnsupportedEnvelope, e.Version)
	}
	if e.Type != MessageCartUpdate {
		return fmt.Errorf("%w: type %q", ErrUnsupportedEnvelope, e.Type)
	}
	if e.TabID == "" {
		return fmt.Errorf("%w: missing tab id", ErrMalformedEnvelope)
	}
	if e.Timestamp <= 0 {
		return fmt.Errorf("%w: non-positive timestamp", ErrMalformedEnvelope)
	}
	return nil
}

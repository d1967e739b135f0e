package domain

import (
	"errors"
	"fmt"
	"time"
)

// ContentKind distinguishes a single stored message from a message range.
type ContentKind string

const (
	ContentSingle ContentKind = "single"
	ContentBatch  ContentKind = "batch"
)

// ContentDescriptor points at one message, or an inclusive range of messages,
// on a source chat. Descriptors are immutable once minted.
type ContentDescriptor struct {
	Token      string      `json:"token" bson:"_id"`
	Kind       ContentKind `json:"kind" bson:"kind"`
	SourceChat int64       `json:"source_chat" bson:"source_chat"`
	StartMsg   int         `json:"start_msg" bson:"msg_id"`
	EndMsg     int         `json:"end_msg,omitempty" bson:"end_msg_id,omitempty"`
	Caption    string      `json:"caption,omitempty" bson:"caption,omitempty"`
	CreatedAt  time.Time   `json:"created_at" bson:"created_at"`
}

// ErrInvalidRange is returned for batch descriptors whose end precedes their start.
var ErrInvalidRange = errors.New("invalid message range")

// Validate checks the descriptor's structural invariants.
func (d *ContentDescriptor) Validate() error {
	switch d.Kind {
	case ContentSingle:
		if d.StartMsg <= 0 {
			return fmt.Errorf("message id %d: %w", d.StartMsg, ErrInvalidRange)
		}
	case ContentBatch:
		if d.StartMsg <= 0 || d.EndMsg < d.StartMsg {
			return fmt.Errorf("range %d..%d: %w", d.StartMsg, d.EndMsg, ErrInvalidRange)
		}
	default:
		return fmt.Errorf("unknown content kind %q", d.Kind)
	}
	return nil
}

// Count returns the number of source messages the descriptor covers.
func (d *ContentDescriptor) Count() int {
	if d.Kind == ContentBatch {
		return d.EndMsg - d.StartMsg + 1
	}
	return 1
}

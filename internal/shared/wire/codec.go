// Package wire carries hivemind messages over gRPC without generated code.
// Payloads are google.protobuf.Struct values built from the JSON form of the
// pkg/core types.
package wire

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// Encode converts a JSON-tagged value into a Struct.
func Encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to build struct payload: %w", err)
	}
	return s, nil
}

// Decode fills v from a Struct produced by Encode.
func Decode(s *structpb.Struct, v any) error {
	if s == nil {
		return fmt.Errorf("empty payload")
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to read struct payload: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}

// JoinRequest announces a worker process and the number of slots it serves.
type JoinRequest struct {
	Address string `json:"address"`
	Slots   int    `json:"slots"`
}

// JoinReply lists the slot ids the masters attached for a joined worker.
type JoinReply struct {
	Slots []string `json:"slots"`
}

// ReleaseRequest tells a worker process that the master dropped one slot.
type ReleaseRequest struct {
	Slot string `json:"slot"`
}

// Package settings stores the widget's display settings (volume, polling
// interval, animation, colors) in the key-value store.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Namespace is the kvstore namespace settings are persisted under.
const Namespace = "settings"

// ErrInvalidFormat is returned by Save when the payload is not a JSON object.
var ErrInvalidFormat = errors.New("settings: invalid settings format")

// Keys are the settings the widget understands, in display order.
var Keys = []string{
	"volume",
	"pollingInterval",
	"displayDuration",
	"enableTTS",
	"customSoundPath",
	"animationType",
	"textColor",
	"textSize",
}

// Defaults returns the settings served when nothing has been saved yet.
func Defaults() map[string]any {
	return map[string]any{
		"volume":          0.5,
		"pollingInterval": 5,
		"displayDuration": 5,
		"enableTTS":       false,
		"customSoundPath": nil,
		"animationType":   "fade",
		"textColor":       "#ffffff",
		"textSize":        100,
	}
}

// Backend persists settings. *kvstore.DB satisfies it.
type Backend interface {
	SetMany(ctx context.Context, namespace string, values map[string]json.RawMessage) error
	All(ctx context.Context, namespace string) (map[string]json.RawMessage, error)
}

// Store reads and writes widget settings.
type Store struct {
	backend Backend
}

// New creates a Store over b.
func New(b Backend) *Store {
	return &Store{backend: b}
}

// Load returns the saved values of the known keys. When none of them has been
// saved, Defaults is returned instead.
func (s *Store) Load(ctx context.Context) (map[string]any, error) {
	all, err := s.backend.All(ctx, Namespace)
	if err != nil {
		return nil, fmt.Errorf("settings: load: %w", err)
	}

	out := make(map[string]any)
	for _, k := range Keys {
		raw, ok := all[k]
		if !ok {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("settings: decode %s: %w", k, err)
		}
		out[k] = v
	}
	if len(out) == 0 {
		return Defaults(), nil
	}
	return out, nil
}

// Save stores every top-level key of payload, which must be a JSON object.
func (s *Store) Save(ctx context.Context, payload json.RawMessage) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil || obj == nil {
		return ErrInvalidFormat
	}
	if err := s.backend.SetMany(ctx, Namespace, obj); err != nil {
		return fmt.Errorf("settings: save: %w", err)
	}
	return nil
}

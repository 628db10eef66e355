// Package prefs stores small per-visitor values: favorites, the
// accepted-cookies flag and the UI language. Every value sits in a versioned
// envelope; anything that fails to decode is treated as absent and discarded,
// never surfaced as an error.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	envelopeVersion = 1
	prefTTL         = 180 * 24 * time.Hour
)

type envelope struct {
	Version int             `json:"v"`
	Data    json.RawMessage `json:"data"`
}

type Store struct {
	client *redis.Client
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client}
}

// Favorites returns the visitor's saved product ids. Missing or corrupt state
// reads as an empty list.
func (s *Store) Favorites(ctx context.Context, visitorID string) []int64 {
	var ids []int64
	s.read(ctx, favoritesKey(visitorID), &ids)
	return ids
}

func (s *Store) AddFavorite(ctx context.Context, visitorID string, productID int64) error {
	ids := s.Favorites(ctx, visitorID)
	for _, id := range ids {
		if id == productID {
			return nil
		}
	}
	return s.write(ctx, favoritesKey(visitorID), append(ids, productID))
}

func (s *Store) RemoveFavorite(ctx context.Context, visitorID string, productID int64) error {
	ids := s.Favorites(ctx, visitorID)
	for i, id := range ids {
		if id == productID {
			return s.write(ctx, favoritesKey(visitorID), append(ids[:i], ids[i+1:]...))
		}
	}
	return nil
}

func (s *Store) AcceptedCookies(ctx context.Context, visitorID string) bool {
	var accepted bool
	s.read(ctx, cookiesKey(visitorID), &accepted)
	return accepted
}

func (s *Store) SetAcceptedCookies(ctx context.Context, visitorID string) error {
	return s.write(ctx, cookiesKey(visitorID), true)
}

// Language returns the selected UI language, empty when unset.
func (s *Store) Language(ctx context.Context, visitorID string) string {
	var lang string
	s.read(ctx, languageKey(visitorID), &lang)
	return lang
}

func (s *Store) SetLanguage(ctx context.Context, visitorID, lang string) error {
	return s.write(ctx, languageKey(visitorID), lang)
}

func (s *Store) read(ctx context.Context, key string, out interface{}) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return
	}

	var env envelope
	if errDecode := json.Unmarshal(data, &env); errDecode != nil || env.Version != envelopeVersion {
		// Unreadable state is discarded and re-created on the next write.
		_ = s.client.Del(ctx, key).Err()
		return
	}
	if errData := json.Unmarshal(env.Data, out); errData != nil {
		_ = s.client.Del(ctx, key).Err()
	}
}

func (s *Store) write(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal preference: %w", err)
	}
	payload, err := json.Marshal(envelope{Version: envelopeVersion, Data: data})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if errSet := s.client.Set(ctx, key, payload, prefTTL).Err(); errSet != nil {
		log.Printf("failed to persist preference %s: %v", key, errSet)
		return fmt.Errorf("redis set failed: %w", errSet)
	}
	return nil
}

func favoritesKey(visitorID string) string { return fmt.Sprintf("prefs:favorites:%s", visitorID) }
func cookiesKey(visitorID string) string   { return fmt.Sprintf("prefs:cookies:%s", visitorID) }
func languageKey(visitorID string) string  { return fmt.Sprintf("prefs:lang:%s", visitorID) }

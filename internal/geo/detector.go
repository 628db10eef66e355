// Package geo resolves a visitor's country to a default display currency.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker/v2"
)

// Preference is the visitor's resolved location and display currency.
type Preference struct {
	CountryCode    string `json:"country_code"`
	CurrencyCode   string `json:"currency_code"`
	CurrencySymbol string `json:"currency_symbol"`
}

// DefaultPreference is used whenever detection fails or no lookup has run.
var DefaultPreference = Preference{
	CountryCode:    "US",
	CurrencyCode:   "usd",
	CurrencySymbol: "$",
}

const (
	prefVersion = 1
	prefTTL     = 30 * 24 * time.Hour
	// ChangeChannel carries preference-change broadcasts so other open
	// contexts can react without polling.
	ChangeChannel = "geo:pref-changed"
)

type storedPreference struct {
	Version int        `json:"v"`
	Pref    Preference `json:"pref"`
}

type lookupResponse struct {
	CountryCode string `json:"country_code"`
}

type Detector struct {
	client   *redis.Client
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker[*lookupResponse]
	endpoint string
}

func NewDetector(client *redis.Client, endpoint string) *Detector {
	settings := gobreaker.Settings{
		Name:    "geolocation",
		Timeout: 30 * time.Second,
	}
	return &Detector{
		client:   client,
		http:     &http.Client{Timeout: 5 * time.Second},
		breaker:  gobreaker.NewCircuitBreaker[*lookupResponse](settings),
		endpoint: endpoint,
	}
}

// Resolve returns the cached preference when present, otherwise runs a
// geolocation lookup and persists the result. Detection never fails: any
// error falls back to the default preference.
func (d *Detector) Resolve(ctx context.Context, visitorID string) Preference {
	if pref, ok := d.cached(ctx, visitorID); ok {
		return pref
	}

	resp, err := d.lookup(ctx)
	if err != nil {
		log.Printf("geolocation lookup failed: %v", err)
		return DefaultPreference
	}

	pref := preferenceForCountry(resp.CountryCode)
	if errSave := d.save(ctx, visitorID, pref); errSave != nil {
		log.Printf("failed to persist location preference: %v", errSave)
	}
	return pref
}

// Change is a preference-change broadcast. The visitor id lets consumers
// forward the change only to contexts belonging to the same visitor.
type Change struct {
	VisitorID string     `json:"visitor_id"`
	Pref      Preference `json:"preference"`
}

// Override replaces the detected country with a user-chosen one, persists it
// and broadcasts the change on ChangeChannel.
func (d *Detector) Override(ctx context.Context, visitorID, countryCode string) (Preference, error) {
	pref := preferenceForCountry(countryCode)
	if err := d.save(ctx, visitorID, pref); err != nil {
		return Preference{}, err
	}

	payload, err := json.Marshal(Change{VisitorID: visitorID, Pref: pref})
	if err != nil {
		return Preference{}, fmt.Errorf("marshal preference: %w", err)
	}
	if errPub := d.client.Publish(ctx, ChangeChannel, payload).Err(); errPub != nil {
		log.Printf("failed to broadcast preference change: %v", errPub)
	}

	return pref, nil
}

// Subscribe delivers preference-change broadcasts until the context is done.
func (d *Detector) Subscribe(ctx context.Context) (<-chan Change, func()) {
	sub := d.client.Subscribe(ctx, ChangeChannel)
	out := make(chan Change, 1)

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				log.Printf("bad preference broadcast: %v", err)
				continue
			}
			select {
			case out <- change:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() { _ = sub.Close() }
}

func (d *Detector) cached(ctx context.Context, visitorID string) (Preference, bool) {
	data, err := d.client.Get(ctx, prefKey(visitorID)).Bytes()
	if err != nil {
		return Preference{}, false
	}

	var stored storedPreference
	if err := json.Unmarshal(data, &stored); err != nil || stored.Version != prefVersion {
		// Unreadable or outdated values are treated as absent.
		_ = d.client.Del(ctx, prefKey(visitorID)).Err()
		return Preference{}, false
	}
	if stored.Pref.CurrencyCode == "" {
		return Preference{}, false
	}
	return stored.Pref, true
}

func (d *Detector) save(ctx context.Context, visitorID string, pref Preference) error {
	data, err := json.Marshal(storedPreference{Version: prefVersion, Pref: pref})
	if err != nil {
		return fmt.Errorf("marshal preference: %w", err)
	}
	if errSet := d.client.Set(ctx, prefKey(visitorID), data, prefTTL).Err(); errSet != nil {
		return fmt.Errorf("redis set failed: %w", errSet)
	}
	return nil
}

func (d *Detector) lookup(ctx context.Context) (*lookupResponse, error) {
	return d.breaker.Execute(func() (*lookupResponse, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint, nil)
		if err != nil {
			return nil, err
		}

		resp, err := d.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("geolocation lookup returned %d", resp.StatusCode)
		}

		var body lookupResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("malformed geolocation response: %w", err)
		}
		if body.CountryCode == "" {
			return nil, fmt.Errorf("geolocation response missing country_code")
		}
		return &body, nil
	})
}

func prefKey(visitorID string) string {
	return fmt.Sprintf("geo:pref:%s", visitorID)
}

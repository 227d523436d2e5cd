// Package platform holds the narrow clients for external platform services.
// The core never depends on their internal schema: every call returns domain
// objects or an empty result on failure.
package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type Friend struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FriendsClient fetches a player's friend list from the platform API.
type FriendsClient struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewFriendsClient(baseURL string, log zerolog.Logger) *FriendsClient {
	return &FriendsClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
		log:     log.With().Str("component", "friends").Logger(),
	}
}

// Friends returns the player's friends, or an empty slice when the platform
// is unreachable, slow or answers garbage. A friends outage must never take
// a game down with it.
func (fc *FriendsClient) Friends(ctx context.Context, playerID string) []Friend {
	if fc.baseURL == "" {
		return []Friend{}
	}
	url := fmt.Sprintf("%s/players/%s/friends", fc.baseURL, playerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return []Friend{}
	}
	resp, err := fc.http.Do(req)
	if err != nil {
		fc.log.Debug().Err(err).Str("player", playerID).Msg("friends fetch failed")
		return []Friend{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return []Friend{}
	}
	var friends []Friend
	if err := json.NewDecoder(resp.Body).Decode(&friends); err != nil {
		fc.log.Debug().Err(err).Str("player", playerID).Msg("friends payload malformed")
		return []Friend{}
	}
	return friends
}

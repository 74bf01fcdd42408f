package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const defaultUrbanBaseURL = "https://api.urbandictionary.com/v0"

// Definition is one Urban Dictionary entry.
type Definition struct {
	Word       string `json:"word"`
	Definition string `json:"definition"`
	Example    string `json:"example"`
	Permalink  string `json:"permalink"`
}

// Urban is a minimal Urban Dictionary client.
type Urban struct {
	BaseURL string
	HTTP    *http.Client
}

func NewUrban() *Urban {
	return &Urban{BaseURL: defaultUrbanBaseURL, HTTP: http.DefaultClient}
}

// Define returns the top definition for the term, or ErrNoResults.
func (u *Urban) Define(ctx context.Context, term string) (Definition, error) {
	endpoint := fmt.Sprintf("%s/define?term=%s", u.BaseURL, url.QueryEscape(term))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Definition{}, err
	}

	resp, err := u.HTTP.Do(req)
	if err != nil {
		return Definition{}, fmt.Errorf("urban dictionary request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Definition{}, fmt.Errorf("urban dictionary: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		List []Definition `json:"list"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Definition{}, fmt.Errorf("urban dictionary response: %w", err)
	}
	if len(body.List) == 0 {
		return Definition{}, ErrNoResults
	}
	return body.List[0], nil
}

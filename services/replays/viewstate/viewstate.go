// Package viewstate maps filter state to and from the compact query-string
// token carried in a shareable address. The frontend owns the actual
// browser-history pushes; the Go side only encodes, decodes and applies.
package viewstate

import (
	"log/slog"
	"net/url"

	"github.com/lwgtools/replaydeck/services/replays/models"
)

const searchKey = "search"

// Encode serialises the non-default parts of a filter state: one query
// parameter per set facet plus one for a non-empty search term. The default
// state encodes to the empty token.
func Encode(state models.FilterState) string {
	params := url.Values{}
	for _, name := range models.FacetNames {
		if v := state.Facet(name); v != "" {
			params.Set(name, v)
		}
	}
	if state.Search != "" {
		params.Set(searchKey, state.Search)
	}
	return params.Encode()
}

// Decode is the left inverse of Encode. Tokens come from user-editable
// addresses, so malformed input is a soft failure: it is logged and decodes
// to the default (unconstrained) state, never an error. Unknown parameters
// are ignored.
func Decode(token string, logger *slog.Logger) models.FilterState {
	if logger == nil {
		logger = slog.Default()
	}
	if token == "" {
		return models.FilterState{}
	}

	params, err := url.ParseQuery(token)
	if err != nil {
		logger.Warn("ignoring malformed view-state token", "token", token, "error", err)
		return models.FilterState{}
	}

	var state models.FilterState
	for _, name := range models.FacetNames {
		if v := params.Get(name); v != "" {
			if state.Facets == nil {
				state.Facets = make(map[string]string, len(models.FacetNames))
			}
			state.Facets[name] = v
		}
	}
	state.Search = params.Get(searchKey)
	return state
}

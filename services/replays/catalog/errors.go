package catalog

import "errors"

var (
	errMissingURL  = errors.New("entry has no url")
	errMissingDate = errors.New("entry has no date")
	errNoPlayers   = errors.New("entry has no players")
)

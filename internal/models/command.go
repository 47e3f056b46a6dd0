package models

import "github.com/benmeehan/kiln-console/internal/constants"

// Command is one request to the controller's command endpoint.
type Command struct {
	Code constants.CommandCode `json:"cmd"`
	P1   int64                 `json:"p1"`
	P2   int64                 `json:"p2"`
}

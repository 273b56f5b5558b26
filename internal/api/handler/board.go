// Package handler provides HTTP handlers for the quakewatch API.
package handler

import (
	"github.com/quakewatch/quakewatch/internal/earthquake"
	"github.com/quakewatch/quakewatch/internal/feed"
)

// Board is the part of *feed.Board the handlers use.
type Board interface {
	Snapshot() feed.Snapshot
	Refresh(q earthquake.QueryConfig) bool
	Reset()
	Ready() bool
}

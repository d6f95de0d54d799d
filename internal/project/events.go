package project

import (
	"errors"

	"github.com/scenehub/projectsync/internal/model"
)

var errOverflow = errors.New("project: event channel full, dropping event")

// EventKind discriminates Event.
type EventKind int

const (
	EventFileCreate EventKind = iota
	EventFileUpdate
	EventFileDelete
	EventFileRename
	EventFileSave
)

// Event is a model-originated change DiskMirror reacts to: the Go
// analogue of asset:file:create/update/delete/rename/save notifications.
type Event struct {
	Kind EventKind

	Path     string // EventFileCreate/Update/Delete/Save
	FromPath string // EventFileRename
	ToPath   string // EventFileRename

	IsFolder bool // EventFileCreate

	// EventFileUpdate carries both the raw ops (for an open-document
	// incremental apply) and the resulting full content (for the
	// closed-document / dirty-buffer disk-write fallback).
	TextOps    []model.TextOp
	NewContent string
}

func (p *Project) publish(ev Event) {
	select {
	case p.events <- ev:
	default:
		p.signal.Recoverable(errOverflow)
	}
}

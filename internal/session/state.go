package session

import (
	"time"

	"github.com/Lllllllleong/anecdotelm/internal/models"
)

// Kind names a lifecycle state.
type Kind string

const (
	KindIdle       Kind = "IDLE"
	KindGenerating Kind = "GENERATING"
	KindSuccess    Kind = "SUCCESS"
	KindError      Kind = "ERROR"
)

// State is one of Idle, Generating, Success or Failed. Each variant carries only
// the data valid in that state.
type State interface {
	Kind() Kind
	isState()
}

type Idle struct{}

type Generating struct {
	Epoch uint64
	Since time.Time
}

type Success struct {
	Document models.GeneratedDocument
}

// Failed is the ERROR state; Message is what the user sees.
type Failed struct {
	Message string
}

func (Idle) Kind() Kind       { return KindIdle }
func (Generating) Kind() Kind { return KindGenerating }
func (Success) Kind() Kind    { return KindSuccess }
func (Failed) Kind() Kind     { return KindError }

func (Idle) isState()       {}
func (Generating) isState() {}
func (Success) isState()    {}
func (Failed) isState()     {}

// transitions is the complete table of legal moves.
var transitions = map[Kind]map[Kind]bool{
	KindIdle:       {KindGenerating: true},
	KindGenerating: {KindSuccess: true, KindError: true},
	KindSuccess:    {KindIdle: true},
	KindError:      {KindGenerating: true, KindIdle: true},
}

func canTransition(from, to Kind) bool {
	return transitions[from][to]
}

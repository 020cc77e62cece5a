package service

import (
	"github.com/timmy/gifsearch/internal/domain"
)

// StateKind tags a ViewState.
type StateKind string

const (
	StateIdle    StateKind = "idle"
	StateLoading StateKind = "loading"
	StateResults StateKind = "results"
	StateError   StateKind = "error"
)

// StateInfo is the fixed icon and message shown for idle and error states.
type StateInfo struct {
	Icon    string `json:"icon"`
	Message string `json:"message"`
}

var (
	IdleInfo  = StateInfo{Icon: "magnifyingglass", Message: "Type text in search bar"}
	ErrorInfo = StateInfo{Icon: "xmark", Message: "Error occurred while fetching gifs"}
)

// ViewState is one immutable snapshot emitted by an Engine.
type ViewState struct {
	Kind        StateKind     `json:"kind"`
	Term        string        `json:"term,omitempty"`
	Items       []domain.Item `json:"items"`
	Info        *StateInfo    `json:"info,omitempty"`
	HasMore     bool          `json:"has_more"`
	LoadingMore bool          `json:"loading_more"`
	Version     uint64        `json:"version"`
}

// EventType names an engine input.
type EventType string

const (
	EventTermChanged     EventType = "term_changed"
	EventLoadMore        EventType = "load_more"
	EventItemToggled     EventType = "item_toggled"
	EventAppearedInitial EventType = "appeared"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventTermChanged, EventLoadMore, EventItemToggled, EventAppearedInitial:
		return true
	}
	return false
}

// Event is an engine input.
type Event struct {
	Type   EventType
	Term   string
	ItemID string
}

func TermChanged(term string) Event { return Event{Type: EventTermChanged, Term: term} }

func LoadMoreRequested() Event { return Event{Type: EventLoadMore} }

func ItemToggled(id string) Event { return Event{Type: EventItemToggled, ItemID: id} }

func AppearedInitial() Event { return Event{Type: EventAppearedInitial} }

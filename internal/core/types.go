package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/JonMunkholm/evesync/internal/document"
	"github.com/JonMunkholm/evesync/internal/preserve"
	"github.com/JonMunkholm/evesync/internal/retriever"
)

// Arg is one named request argument.
type Arg struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// credentialArgs authenticate a request without changing which resource it
// names, so they are left out of the resource key.
var credentialArgs = []string{"vCode"}

// Descriptor identifies one resource to poll.
type Descriptor struct {
	Section string `json:"section"`
	API     string `json:"api"`
	Args    []Arg  `json:"-"`
	OwnerID int64  `json:"owner_id"`
	Key     string `json:"resource_key"`
}

// NewDescriptor builds a descriptor and derives its resource key.
func NewDescriptor(section, api string, ownerID int64, args ...Arg) Descriptor {
	return Descriptor{
		Section: section,
		API:     api,
		Args:    slices.Clone(args),
		OwnerID: ownerID,
		Key:     ResourceKey(section, api, args),
	}
}

// ResourceKey returns the hex SHA-256 of section, api and the non-credential
// arguments sorted by name.
func ResourceKey(section, api string, args []Arg) string {
	sorted := slices.Clone(args)
	slices.SortFunc(sorted, func(a, b Arg) int { return strings.Compare(a.Name, b.Name) })

	h := sha256.New()
	h.Write([]byte("evesync/resource/v1\x00"))
	h.Write([]byte(section + "\x00" + api + "\x00"))
	for _, a := range sorted {
		if slices.Contains(credentialArgs, a.Name) {
			continue
		}
		h.Write([]byte(a.Name + "=" + a.Value + "\x00"))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Arg returns the value of the named argument.
func (d Descriptor) Arg(name string) (string, bool) {
	for _, a := range d.Args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Request converts the descriptor to a retriever request.
func (d Descriptor) Request() retriever.Request {
	args := make(map[string]string, len(d.Args))
	for _, a := range d.Args {
		args[a.Name] = a.Value
	}
	return retriever.Request{Section: d.Section, API: d.API, Args: args}
}

func (d Descriptor) String() string {
	return fmt.Sprintf("%s/%s owner=%d", d.Section, d.API, d.OwnerID)
}

// Scope selects which owners an endpoint is polled for.
type Scope int

const (
	// ScopePublic endpoints need no credentials and are owned by 0.
	ScopePublic Scope = iota
	// ScopeKey endpoints are owned by the API key.
	ScopeKey
	// ScopeCharacter endpoints are polled once per character on the key.
	ScopeCharacter
	// ScopeCorporation endpoints are polled once per corporation on the key.
	ScopeCorporation
)

func (s Scope) String() string {
	switch s {
	case ScopePublic:
		return "public"
	case ScopeKey:
		return "key"
	case ScopeCharacter:
		return "character"
	case ScopeCorporation:
		return "corporation"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// Target routes the rows of one document shape into one table.
type Target struct {
	Shape document.Shape
	Table preserve.Table
	// OwnerColumn receives the descriptor's owner id as a runtime default.
	OwnerColumn string
}

// Endpoint describes one remote API and where its rows are stored.
type Endpoint struct {
	Section string
	Name    string
	Scope   Scope
	Targets []Target
	// Interval overrides the orchestrator's fallback cache interval.
	Interval time.Duration
}

// Key returns "section/name".
func (e Endpoint) Key() string {
	return e.Section + "/" + e.Name
}

func (e Endpoint) shapes() []document.Shape {
	shapes := make([]document.Shape, len(e.Targets))
	for i, t := range e.Targets {
		shapes[i] = t.Shape
	}
	return shapes
}

// Validate checks that the endpoint can be registered.
func (e Endpoint) Validate() error {
	if e.Section == "" || e.Name == "" {
		return fmt.Errorf("endpoint section and name are required")
	}
	if len(e.Targets) == 0 {
		return fmt.Errorf("endpoint %s: no targets", e.Key())
	}
	for _, t := range e.Targets {
		if err := t.Table.Validate(); err != nil {
			return fmt.Errorf("endpoint %s: %w", e.Key(), err)
		}
		if t.OwnerColumn != "" {
			if _, ok := t.Table.Column(t.OwnerColumn); !ok {
				return fmt.Errorf("endpoint %s: owner column %s not in table %s", e.Key(), t.OwnerColumn, t.Table.Name)
			}
		}
	}
	return nil
}

// State is a step of the poll cycle.
type State int

const (
	StateIdle State = iota
	StateCheckCache
	StateAcquireLock
	StateFetch
	StateValidate
	StatePreserveRows
	StatePreserveInvalid
	StateCommitExpiry
	StateReleaseLock
)

var stateNames = [...]string{
	StateIdle:            "Idle",
	StateCheckCache:      "CheckCache",
	StateAcquireLock:     "AcquireLock",
	StateFetch:           "Fetch",
	StateValidate:        "Validate",
	StatePreserveRows:    "PreserveRows",
	StatePreserveInvalid: "PreserveInvalid",
	StateCommitExpiry:    "CommitExpiry",
	StateReleaseLock:     "ReleaseLock",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome summarises how a cycle ended.
type Outcome string

const (
	// OutcomeFresh means the cached copy was still valid.
	OutcomeFresh Outcome = "fresh"
	// OutcomeLocked means another cycle held the resource.
	OutcomeLocked Outcome = "locked"
	// OutcomeStored means rows were written and a new expiry committed.
	OutcomeStored Outcome = "stored"
	// OutcomeInvalid means the document was archived for diagnosis.
	OutcomeInvalid Outcome = "invalid"
	// OutcomeFailed means the cycle aborted without committing an expiry.
	OutcomeFailed Outcome = "failed"
)

// CycleResult reports one orchestrator run.
type CycleResult struct {
	Endpoint   string        `json:"endpoint"`
	Descriptor Descriptor    `json:"descriptor"`
	Outcome    Outcome       `json:"outcome"`
	States     []State       `json:"states"`
	Rows       int           `json:"rows"`
	Expiry     time.Time     `json:"expiry,omitzero"`
	Err        error         `json:"-"`
	Error      string        `json:"error,omitempty"`
	Code       string        `json:"code,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

func (r *CycleResult) enter(s State) {
	r.States = append(r.States, s)
}

func (r *CycleResult) fail(err error) {
	r.Outcome = OutcomeFailed
	r.Err = err
	r.Error = err.Error()
	r.Code = MapError(err).Code
}

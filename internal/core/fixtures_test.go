package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/evesync/internal/cache"
	"github.com/JonMunkholm/evesync/internal/database"
	"github.com/JonMunkholm/evesync/internal/database/dbtest"
	"github.com/JonMunkholm/evesync/internal/document"
	"github.com/JonMunkholm/evesync/internal/preserve"
	"github.com/JonMunkholm/evesync/internal/retriever"
)

// base is the test epoch; offsets in tests are seconds after it.
var base = time.Date(2011, 4, 1, 12, 0, 0, 0, time.UTC)

var refTypesEndpoint = Endpoint{
	Section: "eve",
	Name:    "RefTypes",
	Scope:   ScopePublic,
	Targets: []Target{{
		Shape: document.Shape{Kind: document.Rowset, Name: "refTypes"},
		Table: preserve.Table{
			Name: "eve_ref_types",
			Columns: []preserve.Column{
				{Name: "ref_type_id", Field: "refTypeID", Type: preserve.Integer},
				{Name: "ref_type_name", Field: "refTypeName", Type: preserve.Text},
			},
			Keys: []string{"ref_type_id"},
		},
	}},
}

var keyInfoEndpoint = Endpoint{
	Section: "account",
	Name:    "APIKeyInfo",
	Scope:   ScopeKey,
	Targets: []Target{
		{
			Shape: document.Shape{Kind: document.Element, Name: "key"},
			Table: preserve.Table{
				Name: "account_api_key_info",
				Columns: []preserve.Column{
					{Name: "key_id", Type: preserve.Integer},
					{Name: "access_mask", Field: "accessMask", Type: preserve.Integer},
					{Name: "type", Type: preserve.Text},
					{Name: "expires", Type: preserve.Timestamp},
				},
				Keys:   []string{"key_id"},
				Upsert: true,
			},
			OwnerColumn: "key_id",
		},
		{
			Shape: document.Shape{Kind: document.Rowset, Name: "characters"},
			Table: preserve.Table{
				Name: "account_characters",
				Columns: []preserve.Column{
					{Name: "key_id", Type: preserve.Integer},
					{Name: "character_id", Field: "characterID", Type: preserve.Integer},
					{Name: "character_name", Field: "characterName", Type: preserve.Text},
					{Name: "corporation_id", Field: "corporationID", Type: preserve.Integer},
				},
				Keys:         []string{"key_id", "character_id"},
				ReplaceScope: []string{"key_id"},
			},
			OwnerColumn: "key_id",
		},
	},
}

var walletEndpoint = Endpoint{
	Section: "char",
	Name:    "WalletJournal",
	Scope:   ScopeCharacter,
	Targets: []Target{{
		Shape: document.Shape{Kind: document.Rowset, Name: "transactions"},
		Table: preserve.Table{
			Name: "char_wallet_journal",
			Columns: []preserve.Column{
				{Name: "owner_id", Type: preserve.Integer},
				{Name: "ref_id", Field: "refID", Type: preserve.Integer},
				{Name: "date", Type: preserve.Timestamp},
				{Name: "ref_type_id", Field: "refTypeID", Type: preserve.Integer},
				{Name: "amount", Type: preserve.Decimal},
				{Name: "balance", Type: preserve.Decimal},
			},
			Keys:   []string{"owner_id", "ref_id"},
			Upsert: true,
		},
		OwnerColumn: "owner_id",
	}},
}

var corpWalletEndpoint = Endpoint{
	Section: "corp",
	Name:    "WalletJournal",
	Scope:   ScopeCorporation,
	Targets: []Target{{
		Shape: document.Shape{Kind: document.Rowset, Name: "entries"},
		Table: preserve.Table{
			Name: "corp_wallet_journal",
			Columns: []preserve.Column{
				{Name: "owner_id", Type: preserve.Integer},
				{Name: "account_key", Field: "accountKey", Type: preserve.Integer, Default: int64(1000)},
				{Name: "ref_id", Field: "refID", Type: preserve.Integer},
				{Name: "date", Type: preserve.Timestamp},
				{Name: "ref_type_id", Field: "refTypeID", Type: preserve.Integer},
				{Name: "amount", Type: preserve.Decimal},
				{Name: "balance", Type: preserve.Decimal},
			},
			Keys:   []string{"owner_id", "account_key", "ref_id"},
			Upsert: true,
		},
		OwnerColumn: "owner_id",
	}},
}

// registerTestEndpoints replaces the registry for the duration of the test.
func registerTestEndpoints(t *testing.T, eps ...Endpoint) {
	t.Helper()
	Clear()
	for _, ep := range eps {
		Register(ep)
	}
	t.Cleanup(Clear)
}

// envelope wraps inner in an API document. An empty cachedUntil omits the
// hint.
func envelope(inner, cachedUntil string) []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><eveapi version="2">`)
	b.WriteString(`<currentTime>2011-04-01 12:00:00</currentTime>`)
	b.WriteString(inner)
	if cachedUntil != "" {
		b.WriteString(`<cachedUntil>` + cachedUntil + `</cachedUntil>`)
	}
	b.WriteString(`</eveapi>`)
	return []byte(b.String())
}

// refTypesDoc builds a RefTypes document caching for five minutes.
func refTypesDoc(names ...string) []byte {
	var rows strings.Builder
	for i, n := range names {
		fmt.Fprintf(&rows, `<row refTypeID="%d" refTypeName="%s"/>`, i+1, n)
	}
	return envelope(`<result><rowset name="refTypes" key="refTypeID" columns="refTypeID,refTypeName">`+
		rows.String()+`</rowset></result>`, "2011-04-01 12:05:00")
}

// stubRetriever serves queued responses and counts calls.
type stubRetriever struct {
	mu        sync.Mutex
	responses []stubResponse
	calls     int
	requests  []retriever.Request
}

type stubResponse struct {
	body []byte
	err  error
}

func (s *stubRetriever) queue(body []byte, err error) *stubRetriever {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses = append(s.responses, stubResponse{body: body, err: err})
	return s
}

func (s *stubRetriever) Fetch(_ context.Context, req retriever.Request) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return nil, fmt.Errorf("stub: no response queued for %s/%s", req.Section, req.API)
	}
	r := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return r.body, r.err
}

func (s *stubRetriever) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// testClock is a settable time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(offsetSeconds int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = base.Add(time.Duration(offsetSeconds) * time.Second)
}

type harness struct {
	db      *database.DB
	gate    *cache.Gate
	orch    *Orchestrator
	archive *Archive
	clock   *testClock
	fetcher *stubRetriever
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db := dbtest.New(t)
	gate := cache.NewGate(db, cache.NewSQLLocker(db, "test-holder"))
	archive := NewArchive(db)
	fetcher := &stubRetriever{}
	orch := NewOrchestrator(gate, fetcher, preserve.NewStore(db), archive, 10*time.Minute)

	clock := &testClock{}
	clock.Set(0)
	orch.now = clock.Now

	return &harness{db: db, gate: gate, orch: orch, archive: archive, clock: clock, fetcher: fetcher}
}

func (h *harness) expiry(t *testing.T, d Descriptor) (time.Time, bool) {
	t.Helper()
	exp, found, err := h.gate.Expiry(context.Background(), d.Key, d.OwnerID)
	require.NoError(t, err)
	return exp, found
}

func (h *harness) locks(t *testing.T) []cache.Lock {
	t.Helper()
	locks, err := h.gate.Locker().List(context.Background())
	require.NoError(t, err)
	return locks
}

package core

// planner.go turns registered keys into the list of resources to poll.
//
// Every active key polls account/APIKeyInfo, which records the key's type
// and characters. Other endpoints are planned only once the type is known
// and only when every bit of the endpoint's capability is active on the key.

import (
	"context"
	"fmt"
	"strconv"

	sq "github.com/Masterminds/squirrel"

	"github.com/JonMunkholm/evesync/internal/access"
	"github.com/JonMunkholm/evesync/internal/database"
)

// Job pairs an endpoint with the resource it is polled for.
type Job struct {
	Endpoint   Endpoint
	Descriptor Descriptor
}

// Character is one character listed on a key.
type Character struct {
	ID            int64
	CorporationID int64
}

// Planner builds poll jobs.
type Planner struct {
	db       *database.DB
	keys     *access.KeyStore
	registry *access.Registry
}

// NewPlanner creates a Planner.
func NewPlanner(db *database.DB, keys *access.KeyStore, registry *access.Registry) *Planner {
	return &Planner{db: db, keys: keys, registry: registry}
}

// Plan returns the jobs for public endpoints followed by the jobs of every
// active key in key id order.
func (p *Planner) Plan(ctx context.Context) ([]Job, error) {
	var jobs []Job
	for _, ep := range ByScope(ScopePublic) {
		jobs = append(jobs, Job{Endpoint: ep, Descriptor: NewDescriptor(ep.Section, ep.Name, 0)})
	}

	keys, err := p.keys.Active(ctx)
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		kj, err := p.PlanKey(ctx, k)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, kj...)
	}
	return jobs, nil
}

// PlanKey returns the jobs for one key.
func (p *Planner) PlanKey(ctx context.Context, k *access.Key) ([]Job, error) {
	creds := []Arg{
		{Name: "keyID", Value: strconv.FormatInt(k.ID, 10)},
		{Name: "vCode", Value: k.VCode},
	}

	var jobs []Job
	for _, ep := range ByScope(ScopeKey) {
		if p.allowed(k, ep) {
			jobs = append(jobs, Job{Endpoint: ep, Descriptor: NewDescriptor(ep.Section, ep.Name, k.ID, creds...)})
		}
	}
	if k.Type == "" {
		return jobs, nil
	}

	chars, err := p.Characters(ctx, k.ID)
	if err != nil {
		return nil, err
	}

	if k.Type != access.TypeCorporation {
		for _, ep := range ByScope(ScopeCharacter) {
			if !p.allowed(k, ep) {
				continue
			}
			for _, c := range chars {
				args := append(creds, Arg{Name: "characterID", Value: strconv.FormatInt(c.ID, 10)})
				jobs = append(jobs, Job{Endpoint: ep, Descriptor: NewDescriptor(ep.Section, ep.Name, c.ID, args...)})
			}
		}
		return jobs, nil
	}

	seen := map[int64]bool{}
	for _, ep := range ByScope(ScopeCorporation) {
		if !p.allowed(k, ep) {
			continue
		}
		clear(seen)
		for _, c := range chars {
			if c.CorporationID == 0 || seen[c.CorporationID] {
				continue
			}
			seen[c.CorporationID] = true
			args := append(creds, Arg{Name: "characterID", Value: strconv.FormatInt(c.ID, 10)})
			jobs = append(jobs, Job{Endpoint: ep, Descriptor: NewDescriptor(ep.Section, ep.Name, c.CorporationID, args...)})
		}
	}
	return jobs, nil
}

// allowed reports whether every bit of the endpoint's capability is active
// on the key. APIKeyInfo is always allowed.
func (p *Planner) allowed(k *access.Key, ep Endpoint) bool {
	if ep.Name == access.KeyInfoAPI {
		return true
	}
	if k.Type == "" {
		return false
	}

	var section string
	switch ep.Scope {
	case ScopeCharacter:
		section = "char"
	case ScopeCorporation:
		section = "corp"
	default:
		section = k.Section()
	}

	entry, ok := p.registry.Lookup(section, ep.Name)
	if !ok {
		entry, ok = p.registry.Lookup(ep.Section, ep.Name)
	}
	if !ok {
		return false
	}
	return k.ActiveMask&entry.Mask == entry.Mask
}

// Characters returns the characters recorded for a key by APIKeyInfo.
func (p *Planner) Characters(ctx context.Context, keyID int64) ([]Character, error) {
	query, args, err := p.db.Dialect.Builder().
		Select("character_id", "corporation_id").
		From("account_characters").
		Where(sq.Eq{"key_id": keyID}).
		OrderBy("character_id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build characters query: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query characters of key %d: %w", keyID, err)
	}
	defer rows.Close()

	var chars []Character
	for rows.Next() {
		var c Character
		if err := rows.Scan(&c.ID, &c.CorporationID); err != nil {
			return nil, fmt.Errorf("scan character: %w", err)
		}
		chars = append(chars, c)
	}
	return chars, rows.Err()
}

// Package core provides the poll cycle and the services built on it.
//
// This package holds the domain logic independent of any transport. It is
// used by the HTTP API, the CLI and tests without modification.
//
// # Architecture
//
// The package is organized around several key concepts:
//
//   - Endpoints: Registered via the registry, each endpoint names a remote API,
//     the owners it is polled for and the tables its rows are written to.
//   - Orchestrator: Runs one cycle for one resource through the cache gate,
//     the retriever, the document validator and the relational preserver.
//   - Planner and Runner: Turn registered keys into jobs and run them
//     concurrently under a CycleLimiter.
//   - Service: The main entry point for all operations (poll, keys, locks).
//
// # Endpoint Registry
//
// Endpoints are registered at init time using [Register]:
//
//	core.Register(core.Endpoint{
//	    Section: "eve",
//	    Name:    "RefTypes",
//	    Scope:   core.ScopePublic,
//	    Targets: []core.Target{{
//	        Shape: document.Shape{Kind: document.Rowset, Name: "refTypes"},
//	        Table: preserve.Table{Name: "eve_ref_types", ...},
//	    }},
//	})
//
// # Poll Cycle
//
// Each resource is identified by a [Descriptor] whose Key is a hash of the
// section, API name and arguments. A cycle stops early when the committed
// expiry is still in the future or another process holds the resource's
// lock. Documents that fail validation are archived under an "Invalid"
// API name and still commit an expiry.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Each error category has a unique code for support reference:
//
//   - NET001: The remote API could not be contacted
//   - REM001-REM003: The remote API answered with an error status
//   - DOC001-DOC003: The document could not be preserved normally
//   - PERM001-PERM005: Capability resolution errors
//   - DB001-DB006: Database errors
//   - CYC001-CYC004: Cycle scheduling errors
package core

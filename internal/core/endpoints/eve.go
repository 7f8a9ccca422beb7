package endpoints

import (
	"time"

	"github.com/JonMunkholm/evesync/internal/core"
	"github.com/JonMunkholm/evesync/internal/document"
	"github.com/JonMunkholm/evesync/internal/preserve"
)

func init() {
	registerRefTypes()
	registerErrorList()
	registerServerStatus()
}

// Reference lists are replaced wholesale on every fetch.
func registerRefTypes() {
	core.Register(core.Endpoint{
		Section:  "eve",
		Name:     "RefTypes",
		Scope:    core.ScopePublic,
		Interval: 24 * time.Hour,
		Targets: []core.Target{
			{
				Shape: document.Shape{Kind: document.Rowset, Name: "refTypes"},
				Table: preserve.Table{
					Name: "eve_ref_types",
					Columns: []preserve.Column{
						{Name: "ref_type_id", Field: "refTypeID", Type: preserve.Integer},
						{Name: "ref_type_name", Field: "refTypeName", Type: preserve.Text},
					},
					Keys: []string{"ref_type_id"},
				},
			},
		},
	})
}

func registerErrorList() {
	core.Register(core.Endpoint{
		Section:  "eve",
		Name:     "ErrorList",
		Scope:    core.ScopePublic,
		Interval: 24 * time.Hour,
		Targets: []core.Target{
			{
				Shape: document.Shape{Kind: document.Rowset, Name: "errors"},
				Table: preserve.Table{
					Name: "eve_error_list",
					Columns: []preserve.Column{
						{Name: "error_code", Field: "errorCode", Type: preserve.Integer},
						{Name: "error_text", Field: "errorText", Type: preserve.Text},
					},
					Keys: []string{"error_code"},
				},
			},
		},
	})
}

func registerServerStatus() {
	core.Register(core.Endpoint{
		Section: "server",
		Name:    "ServerStatus",
		Scope:   core.ScopePublic,
		Targets: []core.Target{
			{
				Shape: document.Shape{Kind: document.Fields},
				Table: preserve.Table{
					Name: "server_server_status",
					Columns: []preserve.Column{
						{Name: "owner_id", Type: preserve.Integer},
						{Name: "server_open", Field: "serverOpen", Type: preserve.Bool},
						{Name: "online_players", Field: "onlinePlayers", Type: preserve.Integer},
					},
					Keys:   []string{"owner_id"},
					Upsert: true,
				},
				OwnerColumn: "owner_id",
			},
		},
	})
}

package endpoints

import (
	"github.com/JonMunkholm/evesync/internal/core"
	"github.com/JonMunkholm/evesync/internal/document"
	"github.com/JonMunkholm/evesync/internal/preserve"
)

func init() {
	registerAPIKeyInfo()
	registerAccountStatus()
}

// APIKeyInfo records the key's type and characters. The planner needs both
// before any other endpoint of the key can be polled.
func registerAPIKeyInfo() {
	core.Register(core.Endpoint{
		Section: "account",
		Name:    "APIKeyInfo",
		Scope:   core.ScopeKey,
		Targets: []core.Target{
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
						{Name: "corporation_name", Field: "corporationName", Type: preserve.Text},
					},
					Keys:         []string{"key_id", "character_id"},
					ReplaceScope: []string{"key_id"},
				},
				OwnerColumn: "key_id",
			},
		},
	})
}

func registerAccountStatus() {
	core.Register(core.Endpoint{
		Section: "account",
		Name:    "AccountStatus",
		Scope:   core.ScopeKey,
		Targets: []core.Target{
			{
				Shape: document.Shape{Kind: document.Fields},
				Table: preserve.Table{
					Name: "account_account_status",
					Columns: []preserve.Column{
						{Name: "key_id", Type: preserve.Integer},
						{Name: "paid_until", Field: "paidUntil", Type: preserve.Timestamp},
						{Name: "create_date", Field: "createDate", Type: preserve.Timestamp},
						{Name: "logon_count", Field: "logonCount", Type: preserve.Integer},
						{Name: "logon_minutes", Field: "logonMinutes", Type: preserve.Integer},
					},
					Keys:   []string{"key_id"},
					Upsert: true,
				},
				OwnerColumn: "key_id",
			},
		},
	})
}

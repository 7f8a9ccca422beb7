package endpoints

import (
	"github.com/JonMunkholm/evesync/internal/core"
	"github.com/JonMunkholm/evesync/internal/document"
	"github.com/JonMunkholm/evesync/internal/preserve"
)

func init() {
	registerCorpWalletJournal()
}

// Only the master wallet division (accountKey 1000) is polled.
func registerCorpWalletJournal() {
	core.Register(core.Endpoint{
		Section: "corp",
		Name:    "WalletJournal",
		Scope:   core.ScopeCorporation,
		Targets: []core.Target{
			{
				Shape: document.Shape{Kind: document.Rowset, Name: "entries"},
				Table: preserve.Table{
					Name:    "corp_wallet_journal",
					Columns: journalColumns(),
					Keys:    []string{"owner_id", "account_key", "ref_id"},
					Upsert:  true,
				},
				OwnerColumn: "owner_id",
			},
		},
	})
}

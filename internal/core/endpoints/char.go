package endpoints

import (
	"github.com/JonMunkholm/evesync/internal/core"
	"github.com/JonMunkholm/evesync/internal/document"
	"github.com/JonMunkholm/evesync/internal/preserve"
)

func init() {
	registerCharNotifications()
	registerCharWalletJournal()
}

func registerCharNotifications() {
	core.Register(core.Endpoint{
		Section: "char",
		Name:    "Notifications",
		Scope:   core.ScopeCharacter,
		Targets: []core.Target{
			{
				Shape: document.Shape{Kind: document.Rowset, Name: "notifications"},
				Table: preserve.Table{
					Name: "char_notifications",
					Columns: []preserve.Column{
						{Name: "owner_id", Type: preserve.Integer},
						{Name: "notification_id", Field: "notificationID", Type: preserve.Integer},
						{Name: "type_id", Field: "typeID", Type: preserve.Integer},
						{Name: "sender_id", Field: "senderID", Type: preserve.Integer},
						{Name: "sent_date", Field: "sentDate", Type: preserve.Timestamp},
						{Name: "is_read", Field: "read", Type: preserve.Bool},
					},
					Keys:   []string{"owner_id", "notification_id"},
					Upsert: true,
				},
				OwnerColumn: "owner_id",
			},
		},
	})
}

func registerCharWalletJournal() {
	core.Register(core.Endpoint{
		Section: "char",
		Name:    "WalletJournal",
		Scope:   core.ScopeCharacter,
		Targets: []core.Target{
			{
				Shape: document.Shape{Kind: document.Rowset, Name: "transactions"},
				Table: preserve.Table{
					Name: "char_wallet_journal",
					Columns: append(journalColumns(),
						preserve.Column{Name: "tax_receiver_id", Field: "taxReceiverID", Type: preserve.Integer},
						preserve.Column{Name: "tax_amount", Field: "taxAmount", Type: preserve.Decimal},
					),
					Keys:   []string{"owner_id", "ref_id"},
					Upsert: true,
				},
				OwnerColumn: "owner_id",
			},
		},
	})
}

// journalColumns are shared by the character and corporation journals.
func journalColumns() []preserve.Column {
	return []preserve.Column{
		{Name: "owner_id", Type: preserve.Integer},
		{Name: "account_key", Field: "accountKey", Type: preserve.Integer, Default: int64(1000)},
		{Name: "ref_id", Field: "refID", Type: preserve.Integer},
		{Name: "date", Type: preserve.Timestamp},
		{Name: "ref_type_id", Field: "refTypeID", Type: preserve.Integer},
		{Name: "owner_name1", Field: "ownerName1", Type: preserve.Text},
		{Name: "owner_id1", Field: "ownerID1", Type: preserve.Integer},
		{Name: "owner_name2", Field: "ownerName2", Type: preserve.Text},
		{Name: "owner_id2", Field: "ownerID2", Type: preserve.Integer},
		{Name: "arg_name1", Field: "argName1", Type: preserve.Text},
		{Name: "arg_id1", Field: "argID1", Type: preserve.Integer},
		{Name: "amount", Type: preserve.Decimal},
		{Name: "balance", Type: preserve.Decimal},
		{Name: "reason", Type: preserve.Text},
	}
}

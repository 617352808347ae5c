// Copyright (c) 2025 Sonic Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at soniclabs.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package model

// Names of the entity kinds of the node.
const (
	BlockKind       = "Block"
	TransactionKind = "Transaction"
	AccountKind     = "Account"
	BalanceKind     = "Balance"
	AssetKind       = "Asset"
	DelegateKind    = "Delegate"
	RoundKind       = "Round"
	VariableKind    = "Variable"
)

var (
	BlockSchema = MustSchema(Schema{
		Name: BlockKind,
		Properties: []Property{
			{Name: "height", Type: Int64},
			{Name: "id", Type: String},
			{Name: "version", Type: Int64, Default: 0},
			{Name: "timestamp", Type: Int64},
			{Name: "prevBlockId", Type: String},
			{Name: "count", Type: Int64, Default: 0},
			{Name: "fees", Type: Amount, Default: "0"},
			{Name: "reward", Type: Amount, Default: "0"},
			{Name: "payloadHash", Type: String},
			{Name: "delegate", Type: String},
			{Name: "signature", Type: String},
		},
		PrimaryKey: []string{"height"},
		Uniques:    []Unique{{Name: "id", Properties: []string{"id"}}},
		MaxCached:  100,
	})

	TransactionSchema = MustSchema(Schema{
		Name: TransactionKind,
		Properties: []Property{
			{Name: "id", Type: String},
			{Name: "type", Type: Int64},
			{Name: "timestamp", Type: Int64},
			{Name: "senderId", Type: String},
			{Name: "senderPublicKey", Type: String},
			{Name: "fee", Type: Amount, Default: "0"},
			{Name: "signatures", Type: JSON},
			{Name: "secondSignature", Type: String},
			{Name: "args", Type: JSON},
			{Name: "height", Type: Int64},
			{Name: "message", Type: String},
		},
		PrimaryKey: []string{"id"},
		MaxCached:  10_000,
	})

	AccountSchema = MustSchema(Schema{
		Name: AccountKind,
		Properties: []Property{
			{Name: "address", Type: String},
			{Name: "username", Type: String},
			{Name: "gny", Type: Amount, Default: "0"},
			{Name: "publicKey", Type: String},
			{Name: "secondPublicKey", Type: String},
			{Name: "isDelegate", Type: Int64, Default: 0},
			{Name: "isLocked", Type: Int64, Default: 0},
			{Name: "lockHeight", Type: Int64, Default: 0},
			{Name: "lockAmount", Type: Amount, Default: "0"},
		},
		PrimaryKey: []string{"address"},
		Uniques:    []Unique{{Name: "username", Properties: []string{"username"}}},
	})

	BalanceSchema = MustSchema(Schema{
		Name: BalanceKind,
		Properties: []Property{
			{Name: "address", Type: String},
			{Name: "currency", Type: String},
			{Name: "balance", Type: Amount, Default: "0"},
			{Name: "flag", Type: Int64},
		},
		PrimaryKey: []string{"address", "currency"},
	})

	AssetSchema = MustSchema(Schema{
		Name: AssetKind,
		Properties: []Property{
			{Name: "name", Type: String},
			{Name: "tid", Type: String},
			{Name: "timestamp", Type: Int64},
			{Name: "maximum", Type: Amount},
			{Name: "precision", Type: Int64},
			{Name: "quantity", Type: Amount, Default: "0"},
			{Name: "desc", Type: String},
			{Name: "issuerId", Type: String},
		},
		PrimaryKey: []string{"name"},
		Uniques:    []Unique{{Name: "tid", Properties: []string{"tid"}}},
		Memory:     true,
	})

	DelegateSchema = MustSchema(Schema{
		Name: DelegateKind,
		Properties: []Property{
			{Name: "address", Type: String},
			{Name: "username", Type: String},
			{Name: "tid", Type: String},
			{Name: "publicKey", Type: String},
			{Name: "votes", Type: Amount, Default: "0"},
			{Name: "producedBlocks", Type: Int64, Default: 0},
			{Name: "missedBlocks", Type: Int64, Default: 0},
			{Name: "fees", Type: Amount, Default: "0"},
			{Name: "rewards", Type: Amount, Default: "0"},
		},
		PrimaryKey: []string{"address"},
		Uniques: []Unique{
			{Name: "username", Properties: []string{"username"}},
			{Name: "publicKey", Properties: []string{"publicKey"}},
		},
		Memory: true,
	})

	RoundSchema = MustSchema(Schema{
		Name: RoundKind,
		Properties: []Property{
			{Name: "round", Type: Int64},
			{Name: "fee", Type: Amount, Default: "0"},
			{Name: "reward", Type: Amount, Default: "0"},
		},
		PrimaryKey: []string{"round"},
		MaxCached:  100,
	})

	VariableSchema = MustSchema(Schema{
		Name: VariableKind,
		Properties: []Property{
			{Name: "key", Type: String},
			{Name: "value", Type: String},
		},
		PrimaryKey: []string{"key"},
		Memory:     true,
	})
)

// DefaultRegistry contains the entity kinds of the node.
var DefaultRegistry = mustRegistry(
	BlockSchema,
	TransactionSchema,
	AccountSchema,
	BalanceSchema,
	AssetSchema,
	DelegateSchema,
	RoundSchema,
	VariableSchema,
)

func mustRegistry(schemas ...*Schema) *Registry {
	res, err := NewRegistry(schemas...)
	if err != nil {
		panic(err)
	}
	return res
}

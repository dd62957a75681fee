package public

import (
	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/ledger"
)

type balance struct {
	Fingerprint database.Fingerprint `json:"fingerprint"`
	Name        string               `json:"name"`
	Balance     uint64               `json:"balance"`
	Nonce       uint64               `json:"nonce"`
	UTXOs       []ledger.UTXO        `json:"utxos"`
}

type output struct {
	Amount    uint64               `json:"amount"`
	Recipient database.Fingerprint `json:"recipient"`
	Name      string               `json:"name"`
}

type tx struct {
	Hash       database.Hash      `json:"hash"`
	FeePerByte uint64             `json:"fee_per_byte"`
	Inputs     []database.TxInput `json:"inputs"`
	Outputs    []output           `json:"outputs"`
	Timestamp  uint64             `json:"timestamp"`
}

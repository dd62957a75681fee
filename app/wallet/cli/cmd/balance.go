package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/ledger"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

type balance struct {
	Fingerprint database.Fingerprint `json:"fingerprint"`
	Name        string               `json:"name"`
	Balance     uint64               `json:"balance"`
	Nonce       uint64               `json:"nonce"`
	UTXOs       []ledger.UTXO        `json:"utxos"`
}

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print your balance.",
	Run:   balanceRun,
}

func init() {
	rootCmd.AddCommand(balanceCmd)
}

func balanceRun(cmd *cobra.Command, args []string) {
	privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
	if err != nil {
		log.Fatal(err)
	}

	fp := signature.Fingerprint(&privateKey.PublicKey)
	fmt.Println("For Fingerprint:", fp)

	resp, err := http.Get(fmt.Sprintf("%s/v1/balance/%s", url, fp))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	var bal balance
	if err := json.NewDecoder(resp.Body).Decode(&bal); err != nil {
		log.Fatal(err)
	}

	fmt.Println(bal.Balance)
	for _, u := range bal.UTXOs {
		fmt.Printf("  %s: %d\n", u.OutPoint, u.Output.Amount)
	}
}

package cmd

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"slices"
	"time"

	"github.com/ardanlabs/utxochain/foundation/blockchain/database"
	"github.com/ardanlabs/utxochain/foundation/blockchain/ledger"
	"github.com/ardanlabs/utxochain/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	to         string
	value      uint64
	feePerByte uint64
	data       []byte
)

// ErrInsufficientFunds is returned when the unspent outputs can't cover the
// value and the fee.
var ErrInsufficientFunds = errors.New("insufficient funds")

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send transaction",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		if err := sendWithDetails(privateKey); err != nil {
			log.Fatal(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVarP(&to, "to", "t", "", "Fingerprint of the recipient.")
	sendCmd.Flags().Uint64VarP(&value, "value", "v", 0, "Value to send.")
	sendCmd.Flags().Uint64VarP(&feePerByte, "fee", "f", ledger.MinFeePerByte, "Fee per byte to pay.")
	sendCmd.Flags().BytesHexVarP(&data, "data", "d", nil, "Data to send.")
}

func sendWithDetails(privateKey *ecdsa.PrivateKey) error {
	recipient, err := database.ToFingerprint(to)
	if err != nil {
		return fmt.Errorf("parsing recipient: %w", err)
	}

	fp := signature.Fingerprint(&privateKey.PublicKey)

	resp, err := http.Get(fmt.Sprintf("%s/v1/utxos/list/%s", url, fp))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var utxos []ledger.UTXO
	if err := json.NewDecoder(resp.Body).Decode(&utxos); err != nil {
		return fmt.Errorf("decoding utxos: %w", err)
	}

	tx, err := buildTx(privateKey, utxos, recipient, value, feePerByte, data, uint64(time.Now().UTC().Unix()))
	if err != nil {
		return err
	}

	body, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	resp, err = http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	msg, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Println(string(msg))

	return nil
}

// =============================================================================

// buildTx selects the largest unspent outputs until the value and the fee are
// covered and signs the transaction. The fee depends on the signed size so
// the transaction is rebuilt until the fee it pays covers its own size.
func buildTx(privateKey *ecdsa.PrivateKey, utxos []ledger.UTXO, recipient database.Fingerprint, value uint64, feePerByte uint64, data []byte, timestamp uint64) (database.Tx, error) {
	if value == 0 {
		return database.Tx{}, database.ErrZeroAmount
	}

	utxos = slices.Clone(utxos)
	slices.SortFunc(utxos, func(a, b ledger.UTXO) int {
		switch {
		case a.Output.Amount > b.Output.Amount:
			return -1
		case a.Output.Amount < b.Output.Amount:
			return 1
		}
		return 0
	})

	var fee uint64
	for range 10 {
		tx, err := assembleTx(privateKey, utxos, recipient, value, fee, data, timestamp)
		if err != nil {
			return database.Tx{}, err
		}

		required := uint64(tx.Size()) * feePerByte
		if fee >= required {
			return tx, nil
		}
		fee = required
	}

	return database.Tx{}, errors.New("unable to settle the fee")
}

func assembleTx(privateKey *ecdsa.PrivateKey, utxos []ledger.UTXO, recipient database.Fingerprint, value uint64, fee uint64, data []byte, timestamp uint64) (database.Tx, error) {
	need := value + fee

	var inputs []database.TxInput
	var total uint64
	for _, u := range utxos {
		if total >= need {
			break
		}
		inputs = append(inputs, database.TxInput{PrevTxHash: u.OutPoint.TxHash, Index: u.OutPoint.Index})
		total += u.Output.Amount
	}

	if total < need {
		return database.Tx{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, total, need)
	}

	outputs := []database.TxOutput{{Amount: value, Recipient: recipient}}
	if change := total - need; change > 0 {
		outputs = append(outputs, database.TxOutput{Amount: change, Recipient: signature.Fingerprint(&privateKey.PublicKey)})
	}

	tx := database.Tx{
		Version:   1,
		Inputs:    inputs,
		Outputs:   outputs,
		Timestamp: timestamp,
		Data:      data,
	}

	return signature.SignTx(tx, privateKey)
}

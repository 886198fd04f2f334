package solana

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// UnknownMint is the sentinel used when a Transfer instruction's mint cannot
// be recovered from account-balance metadata.
const UnknownMint = "unknown"

const (
	splTransferDiscriminator        = 3
	splTransferCheckedDiscriminator = 12
)

// Transfer is one parsed token-transfer record.
type Transfer struct {
	Source      string
	Destination string
	Authority   string
	Amount      uint64
	Mint        string
}

// instructionView is the subset of either a legacy or versioned compiled
// instruction the parser needs, normalized so one walk handles both.
type instructionView struct {
	ProgramIDIndex uint16
	AccountIndexes []uint16
	Data           []byte
}

// ParseTransfers walks outer instructions and every nested inner-instruction
// set of a fetched transaction, extracting SPL token transfers. Transfers
// from all outer instructions come first, in instruction order, followed by
// transfers from the inner-instruction sets in metadata order. Inner
// transfers are not interleaved after their parent instruction, so the list
// is not the execution order when an inner transfer ran before a later outer
// one.
func ParseTransfers(tx *rpc.GetTransactionResult) ([]Transfer, error) {
	if tx == nil || tx.Transaction == nil {
		return nil, nil
	}

	decoded, err := tx.Transaction.GetTransaction()
	if err != nil {
		return nil, err
	}

	accountKeys := resolveAccountKeys(decoded, tx.Meta)

	var transfers []Transfer
	for _, inst := range decoded.Message.Instructions {
		view := instructionView{
			ProgramIDIndex: uint16(inst.ProgramIDIndex),
			AccountIndexes: toUint16(inst.Accounts),
			Data:           inst.Data,
		}
		if t, ok := parseInstruction(view, accountKeys, tx.Meta); ok {
			transfers = append(transfers, t)
		}
	}

	if tx.Meta != nil {
		for _, inner := range tx.Meta.InnerInstructions {
			for _, inst := range inner.Instructions {
				view := instructionView{
					ProgramIDIndex: uint16(inst.ProgramIDIndex),
					AccountIndexes: toUint16(inst.Accounts),
					Data:           inst.Data,
				}
				if t, ok := parseInstruction(view, accountKeys, tx.Meta); ok {
					transfers = append(transfers, t)
				}
			}
		}
	}

	return transfers, nil
}

func toUint16(indexes []uint16) []uint16 {
	return indexes
}

// resolveAccountKeys reads account keys from whichever field is present,
// handling both versioned (with address-table lookups resolved into
// Meta.LoadedAddresses) and legacy messages.
func resolveAccountKeys(decoded *solana.Transaction, meta *rpc.TransactionMeta) []solana.PublicKey {
	keys := append([]solana.PublicKey{}, decoded.Message.AccountKeys...)
	if meta != nil {
		keys = append(keys, meta.LoadedAddresses.Writable...)
		keys = append(keys, meta.LoadedAddresses.ReadOnly...)
	}
	return keys
}

func parseInstruction(inst instructionView, accountKeys []solana.PublicKey, meta *rpc.TransactionMeta) (Transfer, bool) {
	if int(inst.ProgramIDIndex) >= len(accountKeys) {
		return Transfer{}, false
	}
	if !accountKeys[inst.ProgramIDIndex].Equals(solana.TokenProgramID) {
		return Transfer{}, false
	}

	// Instruction data shorter than 9 bytes is not a token transfer: 1
	// discriminator byte + 8 amount bytes.
	if len(inst.Data) < 9 {
		return Transfer{}, false
	}

	discriminator := inst.Data[0]
	amount := binary.LittleEndian.Uint64(inst.Data[1:9])

	switch discriminator {
	case splTransferDiscriminator:
		if len(inst.AccountIndexes) < 3 {
			return Transfer{}, false
		}
		source := accountAt(accountKeys, inst.AccountIndexes[0])
		destination := accountAt(accountKeys, inst.AccountIndexes[1])
		authority := accountAt(accountKeys, inst.AccountIndexes[2])
		mint := recoverMintFromBalances(meta, accountKeys, destination)
		return Transfer{
			Source:      source,
			Destination: destination,
			Authority:   authority,
			Amount:      amount,
			Mint:        mint,
		}, true

	case splTransferCheckedDiscriminator:
		if len(inst.AccountIndexes) < 4 {
			return Transfer{}, false
		}
		source := accountAt(accountKeys, inst.AccountIndexes[0])
		mint := accountAt(accountKeys, inst.AccountIndexes[1])
		destination := accountAt(accountKeys, inst.AccountIndexes[2])
		authority := accountAt(accountKeys, inst.AccountIndexes[3])
		return Transfer{
			Source:      source,
			Destination: destination,
			Authority:   authority,
			Amount:      amount,
			Mint:        mint,
		}, true

	default:
		return Transfer{}, false
	}
}

func accountAt(keys []solana.PublicKey, index uint16) string {
	if int(index) >= len(keys) {
		return ""
	}
	return keys[index].String()
}

// recoverMintFromBalances looks up the destination account in the
// transaction's post- or pre-token-balance metadata to recover the mint of
// a two-account Transfer instruction, which carries no mint field itself.
func recoverMintFromBalances(meta *rpc.TransactionMeta, accountKeys []solana.PublicKey, destination string) string {
	if meta == nil || destination == "" {
		return UnknownMint
	}
	if mint, ok := scanBalances(meta.PostTokenBalances, accountKeys, destination); ok {
		return mint
	}
	if mint, ok := scanBalances(meta.PreTokenBalances, accountKeys, destination); ok {
		return mint
	}
	return UnknownMint
}

func scanBalances(balances []rpc.TokenBalance, accountKeys []solana.PublicKey, destination string) (string, bool) {
	for _, balance := range balances {
		idx := int(balance.AccountIndex)
		if idx >= len(accountKeys) {
			continue
		}
		if accountKeys[idx].String() == destination {
			return balance.Mint, true
		}
	}
	return "", false
}

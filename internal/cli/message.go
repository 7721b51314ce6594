package cli

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/mr-tron/base58"
	"github.com/spf13/cobra"

	"github.com/MBenz12/vault-x/internal/client"
	"github.com/MBenz12/vault-x/internal/message"
)

func messageCommand(a *app) *cobra.Command {
	c := &cobra.Command{
		Use:   "message",
		Short: "Build and inspect vault transaction messages",
	}
	c.AddCommand(messageEncodeCommand(), messageTransferCommand(a), messageInspectCommand())
	return c
}

// instructionJSON is one entry of the list message encode reads.
type instructionJSON struct {
	ProgramID string `json:"programId"`
	Accounts  []struct {
		PublicKey  string `json:"pubkey"`
		IsSigner   bool   `json:"isSigner"`
		IsWritable bool   `json:"isWritable"`
	} `json:"accounts"`
	// Data is base58.
	Data string `json:"data"`
}

func (ij instructionJSON) instruction() (solana.Instruction, error) {
	programID, err := parseKey("program id", ij.ProgramID)
	if err != nil {
		return nil, err
	}
	metas := make([]*solana.AccountMeta, 0, len(ij.Accounts))
	for _, acct := range ij.Accounts {
		key, err := parseKey("account", acct.PublicKey)
		if err != nil {
			return nil, err
		}
		metas = append(metas, solana.NewAccountMeta(key, acct.IsWritable, acct.IsSigner))
	}
	data, err := base58.Decode(ij.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid instruction data: %w", err)
	}
	return solana.NewInstruction(programID, metas, data), nil
}

func messageEncodeCommand() *cobra.Command {
	var fundArg, file, encoding string
	c := &cobra.Command{
		Use:   "encode",
		Short: "Compile a JSON instruction list into a message paid by a vault fund",
		RunE: func(cmd *cobra.Command, args []string) error {
			fund, err := parseKey("fund", fundArg)
			if err != nil {
				return err
			}
			var in io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			var list []instructionJSON
			if err := json.NewDecoder(in).Decode(&list); err != nil {
				return fmt.Errorf("failed to read instructions: %w", err)
			}
			ixs := make([]solana.Instruction, 0, len(list))
			for i, ij := range list {
				ix, err := ij.instruction()
				if err != nil {
					return fmt.Errorf("instruction %d: %w", i, err)
				}
				ixs = append(ixs, ix)
			}
			msg, err := message.Compile(fund, ixs...)
			if err != nil {
				return err
			}
			raw, err := message.Encode(msg)
			if err != nil {
				return err
			}
			out, err := encodePayload(raw, encoding)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, out)
			printf(w, "size %d bytes\n", len(raw))
			return nil
		},
	}
	c.Flags().StringVar(&fundArg, "fund", "", "vault fund address that pays and signs")
	c.Flags().StringVarP(&file, "file", "f", "-", "JSON instruction list, - for stdin")
	c.Flags().StringVar(&encoding, "encoding", "base58", "output encoding: base58 or base64")
	c.MarkFlagRequired("fund")
	return c
}

func messageTransferCommand(a *app) *cobra.Command {
	var vaultArg, to, amount, encoding string
	c := &cobra.Command{
		Use:   "transfer",
		Short: "Encode a message that moves SOL out of a vault's fund",
		RunE: func(cmd *cobra.Command, args []string) error {
			vault, err := parseKey("vault", vaultArg)
			if err != nil {
				return err
			}
			dest, err := parseKey("recipient", to)
			if err != nil {
				return err
			}
			lamports, err := client.ParseSOL(amount)
			if err != nil {
				return err
			}
			fund, err := client.NewBuilder(a.cfg.ProgramKey()).Resolver().Fund(vault)
			if err != nil {
				return err
			}
			msg, err := message.Compile(fund.Address, system.NewTransferInstruction(lamports, fund.Address, dest).Build())
			if err != nil {
				return err
			}
			raw, err := message.Encode(msg)
			if err != nil {
				return err
			}
			out, err := encodePayload(raw, encoding)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	c.Flags().StringVar(&vaultArg, "vault", "", "vault address")
	c.Flags().StringVar(&to, "to", "", "recipient address")
	c.Flags().StringVar(&amount, "sol", "", "amount in SOL")
	c.Flags().StringVar(&encoding, "encoding", "base58", "output encoding: base58 or base64")
	c.MarkFlagRequired("vault")
	c.MarkFlagRequired("to")
	c.MarkFlagRequired("sol")
	return c
}

func messageInspectCommand() *cobra.Command {
	var encoding string
	c := &cobra.Command{
		Use:   "inspect <message>",
		Short: "Decode a message and print its accounts and instructions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := decodePayload(args[0], encoding)
			if err != nil {
				return err
			}
			msg, err := message.Parse(raw)
			if err != nil {
				return err
			}
			writeMessage(cmd.OutOrStdout(), msg)
			return nil
		},
	}
	c.Flags().StringVar(&encoding, "encoding", "base58", "input encoding: base58 or base64")
	return c
}

func encodePayload(raw []byte, encoding string) (string, error) {
	switch encoding {
	case "base58":
		return base58.Encode(raw), nil
	case "base64":
		return base64.StdEncoding.EncodeToString(raw), nil
	}
	return "", fmt.Errorf("unknown encoding %q", encoding)
}

func decodePayload(s, encoding string) ([]byte, error) {
	switch encoding {
	case "base58":
		return base58.Decode(s)
	case "base64":
		return base64.StdEncoding.DecodeString(s)
	}
	return nil, fmt.Errorf("unknown encoding %q", encoding)
}

func writeMessage(w io.Writer, msg *message.TransactionMessage) {
	printf(w, "Accounts (%d):\n", len(msg.AccountKeys))
	for i, k := range msg.AccountKeys {
		printf(w, "  [%d] %s (%s)\n", i, k, msg.Permission(i))
	}
	printf(w, "Instructions (%d):\n", len(msg.Instructions))
	for i, ix := range msg.Instructions {
		printf(w, "  #%d program %s\n", i, msg.AccountKeys[ix.ProgramIDIndex])
		for _, idx := range ix.AccountIndexes {
			printf(w, "       account %s\n", msg.AccountKeys[idx])
		}
		printf(w, "       data %s\n", base58.Encode(ix.Data))
	}
}

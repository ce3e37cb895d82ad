package xercd

import (
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/xerc1155/xchain/pkg/codec"
)

var (
	mdDestGasLimit *uint64
	mdDestGasPrice *uint64
	mdAckGasLimit  *uint64
	mdAckGasPrice  *uint64
	mdRelayerFee   *string
	mdAckType      *uint8
	mdIsReadCall   *bool
	mdAsmAddress   *string
)

func init() {
	mdDestGasLimit = metadataBuildCmd.Flags().Uint64("destGasLimit", 300000, "Gas limit for execution on the destination")
	mdDestGasPrice = metadataBuildCmd.Flags().Uint64("destGasPrice", 0, "Gas price on the destination (0 lets the relayer choose)")
	mdAckGasLimit = metadataBuildCmd.Flags().Uint64("ackGasLimit", 0, "Gas limit for the acknowledgment on the source")
	mdAckGasPrice = metadataBuildCmd.Flags().Uint64("ackGasPrice", 0, "Gas price for the acknowledgment on the source")
	mdRelayerFee = metadataBuildCmd.Flags().String("relayerFee", "0", "Relayer fee (uint128, decimal or 0x hex)")
	mdAckType = metadataBuildCmd.Flags().Uint8("ackType", uint8(codec.AckNone), "0 = none, 1 = on success, 2 = on error, 3 = always")
	mdIsReadCall = metadataBuildCmd.Flags().Bool("isReadCall", false, "Request is a read call")
	mdAsmAddress = metadataBuildCmd.Flags().String("asmAddress", "", "Additional security module address")

	MetadataCmd.AddCommand(metadataBuildCmd)
	MetadataCmd.AddCommand(metadataParseCmd)
}

var MetadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Build and inspect gateway request metadata",
}

var metadataBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build request metadata and print it as hex",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fee, ok := new(big.Int).SetString(*mdRelayerFee, 0)
		if !ok {
			return fmt.Errorf("--relayerFee: invalid integer %q", *mdRelayerFee)
		}
		m, err := codec.BuildRequestMetadata(*mdDestGasLimit, *mdDestGasPrice, *mdAckGasLimit, *mdAckGasPrice, fee,
			codec.AckType(*mdAckType), *mdIsReadCall, *mdAsmAddress)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), m.String())
		return nil
	},
}

var metadataParseCmd = &cobra.Command{
	Use:   "parse [HEX]",
	Short: "Decode request metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return parseMetadata(cmd.OutOrStdout(), args[0])
	},
}

func parseMetadata(w io.Writer, in string) error {
	raw, err := parseHex(in)
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	p, err := codec.ParseRequestMetadata(raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "metadata:     %s\n", hexutil.Encode(raw))
	fmt.Fprintf(w, "destGasLimit: %d\n", p.DestGasLimit)
	fmt.Fprintf(w, "destGasPrice: %d\n", p.DestGasPrice)
	fmt.Fprintf(w, "ackGasLimit:  %d\n", p.AckGasLimit)
	fmt.Fprintf(w, "ackGasPrice:  %d\n", p.AckGasPrice)
	fmt.Fprintf(w, "relayerFee:   %s\n", p.RelayerFee)
	fmt.Fprintf(w, "ackType:      %d\n", p.AckType)
	fmt.Fprintf(w, "isReadCall:   %t\n", p.IsReadCall)
	fmt.Fprintf(w, "asmAddress:   %q\n", p.AsmAddress)
	return nil
}

package xercd

import (
	"fmt"
	"io"

	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/xerc1155/xchain/pkg/codec"
)

var (
	packetIDs          *[]string
	packetAmounts      *[]string
	packetRecipient    *string
	packetData         *string
	packetDestContract *string
	packetIsRequest    *bool
)

var dumper = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

func init() {
	packetIDs = packetEncodeCmd.Flags().StringSlice("ids", nil, "Token ids, comma separated")
	packetAmounts = packetEncodeCmd.Flags().StringSlice("amounts", nil, "Amounts, comma separated, parallel to --ids")
	packetRecipient = packetEncodeCmd.Flags().String("recipient", "", "Recipient address on the destination chain")
	packetData = packetEncodeCmd.Flags().String("data", "", "Opaque hex data carried with the transfer")
	packetDestContract = packetEncodeCmd.Flags().String("destContract", "", "Wrap the packet in a gateway request packet for this destination contract")
	packetIsRequest = packetDecodeCmd.Flags().Bool("request", false, "The input is a gateway request packet")

	PacketCmd.AddCommand(packetEncodeCmd)
	PacketCmd.AddCommand(packetDecodeCmd)
}

var PacketCmd = &cobra.Command{
	Use:   "packet",
	Short: "Encode and decode transfer packets",
}

var packetEncodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode a transfer packet and print it as hex",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := encodePacket(*packetIDs, *packetAmounts, *packetRecipient, *packetData, *packetDestContract)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

var packetDecodeCmd = &cobra.Command{
	Use:   "decode [HEX]",
	Short: "Decode a hex transfer packet and dump its contents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return decodePacket(cmd.OutOrStdout(), args[0], *packetIsRequest)
	},
}

func encodePacket(ids, amounts []string, recipient, data, destContract string) (string, error) {
	tokenIDs, err := parseBigs(ids)
	if err != nil {
		return "", fmt.Errorf("--ids: %w", err)
	}
	amts, err := parseBigs(amounts)
	if err != nil {
		return "", fmt.Errorf("--amounts: %w", err)
	}
	to, err := parseAddress("recipient", recipient)
	if err != nil {
		return "", err
	}
	payload, err := parseHex(data)
	if err != nil {
		return "", fmt.Errorf("--data: %w", err)
	}

	req := codec.TransferRequest{TokenIDs: tokenIDs, Amounts: amts, Data: payload, Recipient: codec.EncodeAddress(to)}
	if err := req.Validate(); err != nil {
		return "", err
	}
	packet, err := codec.EncodePacket(req)
	if err != nil {
		return "", err
	}
	if destContract != "" {
		if packet, err = codec.EncodeRequestPacket(destContract, packet); err != nil {
			return "", err
		}
	}
	return hexutil.Encode(packet), nil
}

type decodedPacket struct {
	DestContract string
	TokenIDs     []string
	Amounts      []string
	Data         string
	Recipient    string
}

func decodePacket(w io.Writer, in string, isRequest bool) error {
	raw, err := parseHex(in)
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}

	out := decodedPacket{}
	if isRequest {
		if out.DestContract, raw, err = codec.DecodeRequestPacket(raw); err != nil {
			return err
		}
	}
	req, err := codec.DecodePacket(raw)
	if err != nil {
		return err
	}
	for i := range req.TokenIDs {
		out.TokenIDs = append(out.TokenIDs, req.TokenIDs[i].String())
		out.Amounts = append(out.Amounts, req.Amounts[i].String())
	}
	out.Data = hexutil.Encode(req.Data)
	if to, err := codec.DecodeAddress(req.Recipient); err == nil {
		out.Recipient = to.Hex()
	} else {
		// Recipients are interpreted by the destination only; show what is there.
		out.Recipient = hexutil.Encode(req.Recipient) + " (" + err.Error() + ")"
	}

	dumper.Fdump(w, out)
	return nil
}

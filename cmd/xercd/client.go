package xercd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var (
	clientAPI *string

	balanceChain *string
	balanceOwner *string
	balanceID    *string

	transferChain     *string
	transferDest      *string
	transferCaller    *string
	transferRecipient *string
	transferIDs       *[]string
	transferAmounts   *[]string
	transferData      *string
	transferMetadata  *string
	transferAckType   *uint8
	transferFee       *string
)

func init() {
	clientAPI = ClientCmd.PersistentFlags().String("api", "http://localhost:7071", "Base URL of the node API")

	balanceChain = clientBalanceCmd.Flags().String("chain", "", "Chain id")
	balanceOwner = clientBalanceCmd.Flags().String("owner", "", "Token owner address")
	balanceID = clientBalanceCmd.Flags().String("id", "", "Token id")

	transferChain = clientTransferCmd.Flags().String("chain", "", "Source chain id")
	transferDest = clientTransferCmd.Flags().String("dest", "", "Destination chain id")
	transferCaller = clientTransferCmd.Flags().String("caller", "", "Address whose tokens are burned")
	transferRecipient = clientTransferCmd.Flags().String("recipient", "", "Recipient address on the destination chain")
	transferIDs = clientTransferCmd.Flags().StringSlice("ids", nil, "Token ids, comma separated")
	transferAmounts = clientTransferCmd.Flags().StringSlice("amounts", nil, "Amounts, comma separated, parallel to --ids")
	transferData = clientTransferCmd.Flags().String("data", "", "Opaque hex data carried with the transfer")
	transferMetadata = clientTransferCmd.Flags().String("metadata", "", "Request metadata as hex (see 'xercd metadata build'); overrides --ackType")
	transferAckType = clientTransferCmd.Flags().Uint8("ackType", 1, "Acknowledgment type used when --metadata is not given")
	transferFee = clientTransferCmd.Flags().String("fee", "0", "Fee paid to the gateway")

	ClientCmd.AddCommand(clientBalanceCmd)
	ClientCmd.AddCommand(clientTransferCmd)
	ClientCmd.AddCommand(clientPendingCmd)
	ClientCmd.AddCommand(clientDeliverCmd)
}

var ClientCmd = &cobra.Command{
	Use:   "client",
	Short: "Talk to the API of a running node",
}

type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base: strings.TrimRight(base, "/"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// do sends body as JSON and returns the response body of a 2xx response. Error responses are turned into errors
// carrying the server's message and kind.
func (c *apiClient) do(method, path string, body interface{}) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		if gjson.ValidBytes(out) {
			res := gjson.GetManyBytes(out, "error", "kind")
			if res[1].String() != "" {
				return nil, fmt.Errorf("%s (%s, HTTP %d)", res[0].String(), res[1].String(), resp.StatusCode)
			}
			return nil, fmt.Errorf("%s (HTTP %d)", res[0].String(), resp.StatusCode)
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(out)))
	}
	return out, nil
}

func (c *apiClient) balance(chain, owner, id string) (string, error) {
	out, err := c.do("GET", fmt.Sprintf("/v1/chains/%s/balances/%s/%s", chain, owner, id), nil)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(out, "balance").String(), nil
}

func (c *apiClient) transfer(chain string, body map[string]interface{}) (uint64, error) {
	out, err := c.do("POST", fmt.Sprintf("/v1/chains/%s/transfers", chain), body)
	if err != nil {
		return 0, err
	}
	return gjson.GetBytes(out, "requestId").Uint(), nil
}

// pending returns one line per pending request.
func (c *apiClient) pending() ([]string, error) {
	out, err := c.do("GET", "/v1/gateway/pending", nil)
	if err != nil {
		return nil, err
	}
	var lines []string
	gjson.ParseBytes(out).ForEach(func(_, m gjson.Result) bool {
		line := fmt.Sprintf("%d\t%s -> %s\t%s", m.Get("nonce").Uint(), m.Get("srcChainId").String(), m.Get("destChainId").String(), m.Get("destContract").String())
		if e := m.Get("lastError"); e.Exists() {
			line += fmt.Sprintf("\tattempts=%d lastError=%q", m.Get("attempts").Int(), e.String())
		}
		lines = append(lines, line)
		return true
	})
	return lines, nil
}

func (c *apiClient) deliver(nonce string) (string, error) {
	out, err := c.do("POST", "/v1/gateway/deliver/"+nonce, nil)
	if err != nil {
		return "", err
	}
	res := gjson.ParseBytes(out)
	if res.Get("success").Bool() {
		return fmt.Sprintf("delivered (acked: %t)", res.Get("acked").Bool()), nil
	}
	return fmt.Sprintf("failed on destination: %s (acked: %t)", res.Get("error").String(), res.Get("acked").Bool()), nil
}

var clientBalanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Print the balance of a token owner",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		bal, err := newAPIClient(*clientAPI).balance(*balanceChain, *balanceOwner, *balanceID)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), bal)
		return nil
	},
}

func transferBody() (map[string]interface{}, error) {
	body := map[string]interface{}{
		"caller":      *transferCaller,
		"destChainId": *transferDest,
		"ids":         *transferIDs,
		"amounts":     *transferAmounts,
		"recipient":   *transferRecipient,
		"fee":         *transferFee,
	}
	if *transferData != "" {
		data, err := parseHex(*transferData)
		if err != nil {
			return nil, fmt.Errorf("--data: %w", err)
		}
		body["data"] = hexutil.Bytes(data)
	}
	if *transferMetadata != "" {
		m, err := parseHex(*transferMetadata)
		if err != nil {
			return nil, fmt.Errorf("--metadata: %w", err)
		}
		body["metadata"] = hexutil.Bytes(m)
	} else {
		body["metadataParams"] = map[string]interface{}{
			"destGasLimit": 300000,
			"ackGasLimit":  100000,
			"relayerFee":   "0",
			"ackType":      *transferAckType,
		}
	}
	return body, nil
}

var clientTransferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Burn tokens on one chain and send them to another",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := transferBody()
		if err != nil {
			return err
		}
		id, err := newAPIClient(*clientAPI).transfer(*transferChain, body)
		if err != nil {
			return err
		}
		if id == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "nothing to send, no request dispatched")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "request %d dispatched\n", id)
		return nil
	},
}

var clientPendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List requests the gateway has not delivered yet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		lines, err := newAPIClient(*clientAPI).pending()
		if err != nil {
			return err
		}
		for _, l := range lines {
			fmt.Fprintln(cmd.OutOrStdout(), l)
		}
		return nil
	},
}

var clientDeliverCmd = &cobra.Command{
	Use:   "deliver [NONCE]",
	Short: "Deliver a pending request now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		msg, err := newAPIClient(*clientAPI).deliver(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), msg)
		return nil
	},
}

package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/ghostpni/ghostpni/internal/output"
	"github.com/ghostpni/ghostpni/internal/server/handlers"
)

var submitCmd = &cobra.Command{
	Use:   "submit <raw-hex|@file|->",
	Short: "Submit a transaction to a running agent",
	Long: `Submit a signed transaction to a running agent. The payload is either raw
hex (0x...), a JSON-RPC request for a transaction method, @path to read it
from a file, or - to read it from stdin.

The agent holds the transaction until enough decoy traffic has been sent.
Use --wait to block until it has been dispatched.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().Bool("wait", false, "Wait for the transaction outcome")
	submitCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json")
	addAgentFlags(submitCmd)
}

func runSubmit(cmd *cobra.Command, args []string) error {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return err
	}
	wait, err := cmd.Flags().GetBool("wait")
	if err != nil {
		return err
	}

	payload, err := readPayloadArg(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	client, err := newAgentClient(cmd)
	if err != nil {
		return err
	}

	path := "/api/v1/transactions"
	if wait {
		path += "?wait=true"
	}

	var resp handlers.TransactionResponse
	if err := client.do(cmd.Context(), http.MethodPost, path, bytes.NewReader(payload), &resp); err != nil {
		return err
	}

	return writeTransaction(cmd.OutOrStdout(), format, &resp)
}

// readPayloadArg resolves a submit argument to payload bytes.
func readPayloadArg(arg string, stdin io.Reader) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch {
	case arg == "-":
		data, err = io.ReadAll(io.LimitReader(stdin, 1<<20))
	case strings.HasPrefix(arg, "@"):
		data, err = os.ReadFile(strings.TrimPrefix(arg, "@"))
	default:
		data = []byte(arg)
	}
	if err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.New("payload is empty")
	}
	return data, nil
}

func writeTransaction(w io.Writer, format output.Format, resp *handlers.TransactionResponse) error {
	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	lines := []string{
		"Transaction " + resp.ID,
		"",
		"State: " + string(resp.State),
		fmt.Sprintf("Cover: %d/%d decoys", resp.CoverSent, resp.CoverTarget),
		"Submitted: " + resp.SubmittedAt.Local().Format(time.RFC3339),
	}
	if resp.ReleasedAt != nil {
		lines = append(lines, "Released: "+resp.ReleasedAt.Local().Format(time.RFC3339))
	}
	if resp.Endpoint != "" {
		lines = append(lines, fmt.Sprintf("Endpoint: %s (%d attempt(s))", resp.Endpoint, resp.Attempts))
	}
	if resp.Failure != "" {
		lines = append(lines, "Failure: "+string(resp.Failure))
	}
	if len(resp.Result) > 0 {
		lines = append(lines, "Result: "+string(resp.Result))
	}

	_, err := fmt.Fprint(w, ascii.DrawBox(strings.Join(lines, "\n"), 0))
	return err
}

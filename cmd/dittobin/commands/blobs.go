package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittobin/internal/cli/output"
	"github.com/marmos91/dittobin/pkg/apiclient"
	"github.com/marmos91/dittobin/pkg/blob"
)

var (
	blobsAPIPort int
	blobsOutput  string
	blobsState   string
)

var blobsCmd = &cobra.Command{
	Use:   "blobs",
	Short: "Inspect the blob store of the running server",
	Long: `Inspect the records of the running server's blob store.

Examples:
  # List every record
  dittobin blobs list

  # List records that failed to upload
  dittobin blobs list --state in_error

  # Show one record
  dittobin blobs info sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824

  # Clear a failed record so the next upload retries
  dittobin blobs reset sha256:2cf24dba...`,
}

var blobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List blob records",
	Args:  cobra.NoArgs,
	RunE:  runBlobsList,
}

var blobsInfoCmd = &cobra.Command{
	Use:   "info <id>",
	Short: "Show a blob record",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlobsInfo,
}

var blobsResetCmd = &cobra.Command{
	Use:   "reset <id>",
	Short: "Clear a failed blob record",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlobsReset,
}

func init() {
	blobsCmd.PersistentFlags().IntVar(&blobsAPIPort, "api-port", 8080, "API server port")
	blobsCmd.PersistentFlags().StringVarP(&blobsOutput, "output", "o", "table", "Output format (table|json|yaml)")
	blobsListCmd.Flags().StringVar(&blobsState, "state", "", "Only list records in this state")

	blobsCmd.AddCommand(blobsListCmd)
	blobsCmd.AddCommand(blobsInfoCmd)
	blobsCmd.AddCommand(blobsResetCmd)
}

func runBlobsList(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(blobsOutput)
	if err != nil {
		return err
	}
	if blobsState != "" {
		var st blob.State
		if err := st.UnmarshalText([]byte(blobsState)); err != nil {
			return err
		}
	}

	records, err := apiclient.NewLocal(blobsAPIPort).ListBlobs(cmd.Context(), blobsState)
	if err != nil {
		return fmt.Errorf("failed to list blobs: %w", err)
	}

	if format != output.FormatTable {
		return output.Print(os.Stdout, format, records)
	}
	if len(records) == 0 {
		fmt.Println("No blobs")
		return nil
	}
	return output.PrintTable(os.Stdout, output.RecordTable(records))
}

func runBlobsInfo(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(blobsOutput)
	if err != nil {
		return err
	}
	id, err := blob.Parse(args[0])
	if err != nil {
		return err
	}

	info, err := apiclient.NewLocal(blobsAPIPort).BlobInfo(cmd.Context(), id)
	if err != nil {
		if apiErr, ok := apiclient.AsAPIError(err); ok && apiErr.IsNotFound() {
			return fmt.Errorf("blob %s is not registered", id)
		}
		return fmt.Errorf("failed to get blob: %w", err)
	}

	if format != output.FormatTable {
		return output.Print(os.Stdout, format, info)
	}
	return output.PrintTable(os.Stdout, output.RecordTable{*info})
}

func runBlobsReset(cmd *cobra.Command, args []string) error {
	id, err := blob.Parse(args[0])
	if err != nil {
		return err
	}
	if err := apiclient.NewLocal(blobsAPIPort).ResetBlob(cmd.Context(), id); err != nil {
		return fmt.Errorf("failed to reset blob: %w", err)
	}
	fmt.Printf("Blob %s reset\n", id)
	return nil
}

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nimburion/docstore/pkg/store"
	"github.com/nimburion/docstore/pkg/store/factory"
)

const defaultCommandTimeout = time.Minute

// withClient loads the configuration, connects a client and runs fn against
// it. The client is disconnected before returning.
func withClient(cmd *cobra.Command, loadConfig configLoader, timeout time.Duration, fn func(ctx context.Context, client store.Client) error) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := factory.NewClient(cfg.Store, log)
	if err != nil {
		return fmt.Errorf("create store client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer disconnect(client, log)

	return fn(ctx, client)
}

func newGetCommand(loadConfig configLoader, flags *globalFlags) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "get KEY...",
		Short: "Print the documents stored under the given keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, loadConfig, timeout, func(ctx context.Context, client store.Client) error {
				docs, err := client.Get(ctx, args)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), flags.output, documentsOutput(docs))
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultCommandTimeout, "overall command timeout")
	return cmd
}

func newSetCommand(loadConfig configLoader) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "set JSON",
		Short: "Write a JSON object of key to document (use - to read stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw := []byte(args[0])
			if args[0] == "-" {
				var err error
				if raw, err = io.ReadAll(cmd.InOrStdin()); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}
			payload, err := store.DecodeDocument(raw)
			if err != nil {
				return fmt.Errorf("invalid payload: %w", err)
			}
			return withClient(cmd, loadConfig, timeout, func(ctx context.Context, client store.Client) error {
				if err := client.Set(ctx, payload); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "stored %d document(s)\n", len(payload))
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultCommandTimeout, "overall command timeout")
	return cmd
}

func newRemoveCommand(loadConfig configLoader) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "remove KEY",
		Short: "Delete the document stored under KEY",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, loadConfig, timeout, func(ctx context.Context, client store.Client) error {
				if err := client.Remove(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultCommandTimeout, "overall command timeout")
	return cmd
}

func newRemoveAllCommand(loadConfig configLoader) *cobra.Command {
	var (
		timeout time.Duration
		yes     bool
	)
	cmd := &cobra.Command{
		Use:   "remove-all",
		Short: "Delete every document in the configured namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("remove-all deletes every document; pass --yes to confirm")
			}
			return withClient(cmd, loadConfig, timeout, func(ctx context.Context, client store.Client) error {
				if err := client.RemoveAll(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "removed all documents")
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultCommandTimeout, "overall command timeout")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}

func newHealthcheckCommand(loadConfig configLoader) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Connect to the configured store and probe it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd, loadConfig, timeout, func(ctx context.Context, client store.Client) error {
				if err := client.IsReady(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", client.Backend())
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "probe timeout")
	return cmd
}

// documentsOutput turns missing documents into untyped nils so both
// encoders print null for them.
func documentsOutput(docs store.Documents) map[string]any {
	out := make(map[string]any, len(docs))
	for key, doc := range docs {
		if doc == nil {
			out[key] = nil
			continue
		}
		out[key] = map[string]any(doc)
	}
	return out
}

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/n1qlorm/internal/value"
)

// Document is a key-value read as printed by get.
type Document struct {
	Key string         `json:"key"`
	CAS uint64         `json:"cas"`
	Doc value.Document `json:"doc"`
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>...",
		Short: "Read documents by key",
		Long: `Read documents by key from the configured backend.

Every key is read even when an earlier one is missing; the command fails
with exit code 1 if any key could not be read.

Example:
  n1ql get users::1
  n1ql get users::1 users::2 --format json`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGet(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runGet(opts *RootOptions, keys []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := loadConfig(opts)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return err
	}
	logger := newLogger(opts, cfg)

	sess, err := openSession(cmd.Context(), cfg, logger)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return err
	}
	defer sess.Close()

	docs := make([]Document, 0, len(keys))
	var firstErr error
	for _, key := range keys {
		item, err := sess.conn.Get(cmd.Context(), key)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			fmt.Fprintf(formatter.GetErrWriter(), "%s: %v\n", key, err)
			continue
		}
		docs = append(docs, Document{Key: item.Key, CAS: uint64(item.CAS), Doc: item.Doc})
	}

	if firstErr != nil && len(docs) == 0 {
		return formatter.Fail("get failed", firstErr)
	}

	if opts.Format == "json" {
		if err := formatter.Success(docs); err != nil {
			return err
		}
	} else {
		for _, d := range docs {
			body, err := json.MarshalIndent(d.Doc, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal %s: %w", d.Key, err)
			}
			fmt.Fprintf(formatter.Writer, "%s (cas %d)\n%s\n", d.Key, d.CAS, body)
		}
	}

	if firstErr != nil {
		return WrapExitError(ExitFailure, "some keys could not be read", firstErr)
	}
	return nil
}

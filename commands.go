package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ghodss/yaml"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/stevemurr/arowana/base"
	"github.com/stevemurr/arowana/store"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

type app struct {
	cfg    Config
	logger *zap.Logger
}

func rootCmd() *cobra.Command {
	a := &app{cfg: defaultConfig()}
	cmd := &cobra.Command{
		Use:           "arowana",
		Short:         "a document key-value store on SQLite",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			logger, err := newLogger(a.cfg.LogLevel)
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&a.cfg.DataDir, "data-dir", a.cfg.DataDir, "data directory")
	cmd.PersistentFlags().StringVar(&a.cfg.Backend, "backend", a.cfg.Backend, "store backend (sqlite, json, memory)")
	cmd.PersistentFlags().StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "log level (debug, info, warn, error)")

	cmd.AddCommand(
		a.putCmd("put", "store a document, replacing any record with the same key"),
		a.putCmd("insert", "store a document, failing if the key exists"),
		a.getCmd(),
		a.deleteCmd(),
		a.putsCmd(),
		a.allCmd(),
		a.updateCmd(),
		a.dropCmd(),
		a.basesCmd(),
	)
	return cmd
}

// withBase opens the named base for the duration of fn.
func (a *app) withBase(name string, fn func(b *base.Base) error) error {
	b, err := base.Open(a.cfg.Backend, a.cfg.DataDir, name, base.WithLogger(a.logger))
	if err != nil {
		return err
	}
	defer b.Close()
	return fn(b)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput returns the document argument, stdin for "-", or the file
// contents when path is set, converted from YAML if needed.
func readInput(cmd *cobra.Command, args []string, path string) ([]byte, error) {
	var raw []byte
	switch {
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		raw = b
	case len(args) == 0:
		return nil, fmt.Errorf("missing document")
	case args[0] == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, err
		}
		raw = b
	default:
		raw = []byte(args[0])
	}
	if gjson.ValidBytes(raw) {
		return raw, nil
	}
	return yaml.YAMLToJSON(raw)
}

func (a *app) putCmd(use, short string) *cobra.Command {
	var key, file string
	cmd := &cobra.Command{
		Use:   use + " BASE [DOC|-]",
		Short: short,
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[1:], file)
			if err != nil {
				return err
			}
			doc, err := base.Parse(raw)
			if err != nil {
				return err
			}
			return a.withBase(args[0], func(b *base.Base) error {
				write := b.Put
				if use == "insert" {
					write = b.Insert
				}
				rec, err := write(doc, key)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
	cmd.Flags().StringVarP(&key, "key", "k", "", "record key (default: the document's key field, or generated)")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the document from a JSON or YAML file")
	return cmd
}

func (a *app) getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get BASE KEY",
		Short: "print a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBase(args[0], func(b *base.Base) error {
				rec, err := b.Get(args[1])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), rec)
			})
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete BASE KEY",
		Short: "delete a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.withBase(args[0], func(b *base.Base) error {
				return b.Delete(args[1])
			})
		},
	}
}

func (a *app) putsCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "puts BASE [DOCS|-]",
		Short: "store an array of documents in one batch",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd, args[1:], file)
			if err != nil {
				return err
			}
			r := gjson.ParseBytes(raw)
			if !r.IsArray() {
				return fmt.Errorf("%w: expected an array of documents", base.ErrInvalidDocument)
			}
			var docs []base.Document
			for _, item := range r.Array() {
				doc, err := base.Parse([]byte(item.Raw))
				if err != nil {
					return err
				}
				docs = append(docs, doc)
			}
			return a.withBase(args[0], func(b *base.Base) error {
				recs, err := b.PutMany(docs)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), recs)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "read the documents from a JSON or YAML file")
	return cmd
}

func (a *app) allCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all BASE",
		Short: "print every record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withBase(args[0], func(b *base.Base) error {
				recs, err := b.All()
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), recs)
			})
		},
	}
}

func (a *app) updateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update BASE KEY EXPR...",
		Short: "change fields of a record in place",
		Long: `Change fields of a record in place. Expressions apply in order, as one transaction:

  field=<json>      set the field (a value that is not JSON is stored as a string)
  field+=<number>   add to a numeric field
  field[]=<json>    append to an array field
  field~            remove the field`,
		Args: cobra.MinimumNArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			var changes []base.Change
			for _, expr := range args[2:] {
				c, err := parseChange(expr)
				if err != nil {
					return err
				}
				changes = append(changes, c)
			}
			return a.withBase(args[0], func(b *base.Base) error {
				return b.Update(args[1], changes...)
			})
		},
	}
}

// parseChange reads one update expression.
func parseChange(expr string) (base.Change, error) {
	if field, ok := strings.CutSuffix(expr, "~"); ok && !strings.Contains(field, "=") {
		return base.Field(field, base.Trim()), nil
	}
	i := strings.IndexByte(expr, '=')
	if i < 0 {
		return base.Change{}, fmt.Errorf("invalid update expression %q", expr)
	}
	field, value := expr[:i], expr[i+1:]
	switch {
	case strings.HasSuffix(field, "+"):
		field = strings.TrimSuffix(field, "+")
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return base.Field(field, base.IncrementBy(n)), nil
		}
		f, err := cast.ToFloat64E(value)
		if err != nil {
			return base.Change{}, fmt.Errorf("invalid increment %q: %w", expr, err)
		}
		return base.Field(field, base.IncrementBy(f)), nil
	case strings.HasSuffix(field, "[]"):
		return base.Field(strings.TrimSuffix(field, "[]"), base.Append(jsonValue(value))), nil
	default:
		return base.Field(field, jsonValue(value)), nil
	}
}

func jsonValue(s string) any {
	if gjson.Valid(s) {
		return json.RawMessage(s)
	}
	return s
}

func (a *app) dropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop BASE",
		Short: "delete a base and all its records",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return a.withBase(args[0], func(b *base.Base) error {
				return b.Drop()
			})
		},
	}
}

func (a *app) basesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bases",
		Short: "list bases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := store.New(a.cfg.Backend, a.cfg.DataDir)
			if err != nil {
				return err
			}
			defer s.Close()
			names, err := s.Tables()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}

// recallbox is a thin command-line wrapper over the memory store: the
// store's CRUD and search primitives plus the contact-memory façade. The
// conversational agent is expected to use the same packages directly; this
// binary exists for inspection and scripting.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/recallbox/recallbox/internal/config"
	"github.com/recallbox/recallbox/internal/memory"
	"github.com/recallbox/recallbox/internal/store"
)

func main() {
	// .env is optional; real env always wins.
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	cfg *config.Config
	db  *store.DB
	mem *memory.Manager
}

func (a *app) open(ctx context.Context, configDir string) error {
	a.cfg = config.New(configDir)
	if err := os.MkdirAll(a.cfg.ConfigDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	db, err := store.Open(ctx, a.cfg.DBPath)
	if err != nil {
		return err
	}
	a.db = db
	a.mem = memory.NewManager(db,
		memory.WithPlatform(a.cfg.Platform),
		memory.WithBotName(a.cfg.BotName),
		memory.WithLogger(slog.Default()),
	)
	return nil
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var configDir string

	root := &cobra.Command{
		Use:           "recallbox",
		Short:         "Persistent namespaced memory store for conversational agents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.open(cmd.Context(), configDir)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.db != nil {
				return a.db.Close()
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", "", "config directory (default: .recallbox or ~/.config/recallbox)")

	root.AddCommand(
		newPutCmd(a), newGetCmd(a), newDeleteCmd(a), newListCmd(a), newSearchCmd(a),
		newRememberCmd(a), newProfileCmd(a), newContextCmd(a), newRecallCmd(a),
		newCheckCmd(a),
	)
	return root
}

func parseNamespace(flag string) (store.Namespace, error) {
	ns := store.Namespace(strings.Split(flag, "/"))
	if flag == "" {
		ns = nil
	}
	if err := ns.Validate(); err != nil {
		return nil, fmt.Errorf("--ns: %w", err)
	}
	return ns, nil
}

func printJSON(v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

func newPutCmd(a *app) *cobra.Command {
	var nsFlag, metaFlag string
	cmd := &cobra.Command{
		Use:   "put <key> <json-value>",
		Short: "Insert or replace a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := parseNamespace(nsFlag)
			if err != nil {
				return err
			}
			var value map[string]any
			if err := json.Unmarshal([]byte(args[1]), &value); err != nil {
				return fmt.Errorf("value must be a JSON object: %w", err)
			}
			var metadata map[string]any
			if metaFlag != "" {
				if err := json.Unmarshal([]byte(metaFlag), &metadata); err != nil {
					return fmt.Errorf("--metadata must be a JSON object: %w", err)
				}
			}
			return a.db.Put(cmd.Context(), ns, args[0], value, metadata)
		},
	}
	cmd.Flags().StringVar(&nsFlag, "ns", "", "namespace, slash-separated (e.g. whatsapp/user/alice)")
	cmd.Flags().StringVar(&metaFlag, "metadata", "", "optional metadata JSON object")
	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	var nsFlag string
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Fetch a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := parseNamespace(nsFlag)
			if err != nil {
				return err
			}
			rec, err := a.db.Get(cmd.Context(), ns, args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				fmt.Println("not found")
				return nil
			}
			return printJSON(rec)
		},
	}
	cmd.Flags().StringVar(&nsFlag, "ns", "", "namespace, slash-separated")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var nsFlag string
	cmd := &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := parseNamespace(nsFlag)
			if err != nil {
				return err
			}
			return a.db.Delete(cmd.Context(), ns, args[0])
		},
	}
	cmd.Flags().StringVar(&nsFlag, "ns", "", "namespace, slash-separated")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var nsFlag, prefix string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records in a namespace, most recently updated first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ns, err := parseNamespace(nsFlag)
			if err != nil {
				return err
			}
			recs, err := a.db.List(cmd.Context(), ns, prefix, limit, offset)
			if err != nil {
				return err
			}
			return printJSON(recs)
		},
	}
	cmd.Flags().StringVar(&nsFlag, "ns", "", "namespace, slash-separated")
	cmd.Flags().StringVar(&prefix, "prefix", "", "key prefix filter")
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "page offset")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	var nsFlag string
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search within a namespace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, err := parseNamespace(nsFlag)
			if err != nil {
				return err
			}
			results, err := a.db.Search(cmd.Context(), ns, args[0], limit)
			if err != nil {
				return err
			}
			return printJSON(results)
		},
	}
	cmd.Flags().StringVar(&nsFlag, "ns", "", "namespace, slash-separated")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	return cmd
}

func newRememberCmd(a *app) *cobra.Command {
	var group bool
	var memType string
	var importance int
	var tags []string
	cmd := &cobra.Command{
		Use:   "remember <contact> <content>",
		Short: "Store a memory about a contact",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := a.mem.AddMemory(cmd.Context(), args[0], group, args[1], memType, importance, tags)
			if err != nil {
				return err
			}
			fmt.Println(key)
			return nil
		},
	}
	cmd.Flags().BoolVar(&group, "group", false, "contact is a group chat")
	cmd.Flags().StringVar(&memType, "type", memory.TypeFact, "memory type (fact, preference, event, personality)")
	cmd.Flags().IntVar(&importance, "importance", 5, "importance 1-10")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "tags for retrieval")
	return cmd
}

func newProfileCmd(a *app) *cobra.Command {
	var group bool
	var summary string
	var traits []string
	cmd := &cobra.Command{
		Use:   "profile <contact>",
		Short: "Show a contact profile, or update it with --summary/--trait",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if summary != "" || len(traits) > 0 {
				traitMap := map[string]any{}
				for _, t := range traits {
					k, v, ok := strings.Cut(t, "=")
					if !ok {
						return fmt.Errorf("--trait must be key=value, got %q", t)
					}
					traitMap[k] = v
				}
				return a.mem.SaveContactProfile(cmd.Context(), args[0], group, summary, traitMap, nil)
			}
			p, err := a.mem.ContactProfile(cmd.Context(), args[0], group)
			if err != nil {
				return err
			}
			if p == nil {
				fmt.Println("no profile")
				return nil
			}
			return printJSON(p)
		},
	}
	cmd.Flags().BoolVar(&group, "group", false, "contact is a group chat")
	cmd.Flags().StringVar(&summary, "summary", "", "personality summary to merge")
	cmd.Flags().StringArrayVar(&traits, "trait", nil, "trait to merge, key=value (repeatable)")
	return cmd
}

func newContextCmd(a *app) *cobra.Command {
	var group bool
	var maxMemories int
	cmd := &cobra.Command{
		Use:   "context <contact>",
		Short: "Render the prompt-injection context block for a contact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxMemories <= 0 {
				maxMemories = a.cfg.ContextMemories
			}
			text, err := a.mem.ContactContext(cmd.Context(), args[0], group, maxMemories)
			if err != nil {
				return err
			}
			fmt.Println(text)
			return nil
		},
	}
	cmd.Flags().BoolVar(&group, "group", false, "contact is a group chat")
	cmd.Flags().IntVar(&maxMemories, "max", 0, "memories to include (default from config)")
	return cmd
}

func newRecallCmd(a *app) *cobra.Command {
	var group bool
	var limit int
	cmd := &cobra.Command{
		Use:   "recall <contact> <query>",
		Short: "Find memories about a contact matching a query",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			memories, err := a.mem.FindRelevantMemories(cmd.Context(), args[0], group, args[1], limit)
			if err != nil {
				return err
			}
			return printJSON(memories)
		},
	}
	cmd.Flags().BoolVar(&group, "group", false, "contact is a group chat")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	return cmd
}

func newCheckCmd(a *app) *cobra.Command {
	var reindex bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify database and search-index integrity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if reindex {
				if err := a.db.Reindex(cmd.Context()); err != nil {
					return err
				}
				fmt.Println("search index rebuilt")
			}
			if err := a.db.CheckIntegrity(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("ok")
			return nil
		},
	}
	cmd.Flags().BoolVar(&reindex, "reindex", false, "rebuild the search index before checking")
	return cmd
}

package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/modelrouter/pkg/cli"
	"mercator-hq/modelrouter/pkg/store"
	"mercator-hq/modelrouter/pkg/store/retention"
)

var configFlags struct {
	file        string
	description string
	version     int
	limit       int
	keep        int
	all         bool
}

var initCmd = &cobra.Command{
	Use:   "init KEY",
	Short: "Create version 1 of a key",
	Long: `Create version 1 of a key from a JSON or YAML document.

Initializing a key that already has versions changes nothing and reports the
current version.

Examples:
  routerstore init model-router-config --file routes.json
  cat routes.yaml | routerstore init model-router-config --file -`,
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

var putCmd = &cobra.Command{
	Use:   "put KEY",
	Short: "Store a new version of a key",
	Long: `Store a document as the next version of a key.

A document equal to the current version is not stored again and the current
version is reported. An uninitialized key is initialized.

Examples:
  routerstore put model-router-config --file routes.yaml --description "raise chat weights"`,
	Args: cobra.ExactArgs(1),
	RunE: runPut,
}

var getCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Print the current or a specific version of a key",
	Long: `Print the current document of a key, or one version with --version.

Examples:
  routerstore get model-router-config
  routerstore get model-router-config --version 3 -o yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

var metadataCmd = &cobra.Command{
	Use:   "metadata KEY",
	Short: "Print the metadata of a key",
	Args:  cobra.ExactArgs(1),
	RunE:  runMetadata,
}

var historyCmd = &cobra.Command{
	Use:   "history KEY",
	Short: "List the version history of a key, newest first",
	Long: `List the version history of a key, newest first.

Examples:
  routerstore history model-router-config
  routerstore history model-router-config --limit 5 -o json`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback KEY VERSION",
	Short: "Restore an older version as a new version",
	Long: `Restore the content of an older version as a new version.

Earlier versions, including the restored one, stay in the history.

Examples:
  routerstore rollback model-router-config 3 --description "revert bad weights"`,
	Args: cobra.ExactArgs(2),
	RunE: runRollback,
}

var deleteCmd = &cobra.Command{
	Use:   "delete KEY",
	Short: "Delete a key with all of its versions and history",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "List stored keys",
	Args:  cobra.NoArgs,
	RunE:  runKeys,
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup [KEY]",
	Short: "Delete all but the newest versions",
	Long: `Delete all but the newest versions of a key, or of every key with --all.

The current version is always kept. --keep defaults to
retention.keep_versions from the configuration.

Examples:
  routerstore cleanup model-router-config --keep 5
  routerstore cleanup --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(initCmd, putCmd, getCmd, metadataCmd, historyCmd, rollbackCmd, deleteCmd, keysCmd, cleanupCmd)

	for _, c := range []*cobra.Command{initCmd, putCmd} {
		c.Flags().StringVarP(&configFlags.file, "file", "f", "", "document file (JSON or YAML), - for stdin")
		c.Flags().StringVarP(&configFlags.description, "description", "d", "", "change description")
		_ = c.MarkFlagRequired("file")
	}
	rollbackCmd.Flags().StringVarP(&configFlags.description, "description", "d", "", "change description")

	getCmd.Flags().IntVar(&configFlags.version, "version", 0, "version to print (default: current)")
	historyCmd.Flags().IntVar(&configFlags.limit, "limit", 0, "maximum entries (0 for all)")
	cleanupCmd.Flags().IntVar(&configFlags.keep, "keep", 0, "versions to keep (default: retention.keep_versions)")
	cleanupCmd.Flags().BoolVar(&configFlags.all, "all", false, "clean up every key")
}

func runInit(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	vm, err := a.versioned()
	if err != nil {
		return cli.NewCommandError("init", err)
	}
	doc, err := readDocument(configFlags.file, cmd.InOrStdin())
	if err != nil {
		return cli.NewCommandError("init", err)
	}

	res, err := vm.InitializeConfig(commandContext(cmd), args[0], doc, configFlags.description)
	if err != nil {
		return cli.NewCommandError("init", err)
	}
	if res.AlreadyInitialized {
		return a.print(fmt.Sprintf("%s is already initialized at version %d", args[0], res.Version))
	}
	return a.print(fmt.Sprintf("%s initialized at version %d", args[0], res.Version))
}

func runPut(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	doc, err := readDocument(configFlags.file, cmd.InOrStdin())
	if err != nil {
		return cli.NewCommandError("put", err)
	}

	vm, ok := store.AsVersionManager(a.manager)
	if !ok {
		if err := a.manager.UpdateConfig(commandContext(cmd), args[0], doc); err != nil {
			return cli.NewCommandError("put", err)
		}
		return a.print(fmt.Sprintf("%s stored", args[0]))
	}

	version, err := vm.UpdateConfigVersion(commandContext(cmd), args[0], doc, configFlags.description, currentUser())
	if err != nil {
		return cli.NewCommandError("put", err)
	}
	return a.print(fmt.Sprintf("%s is at version %d", args[0], version))
}

func runGet(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	key := args[0]
	var doc store.Document
	if configFlags.version > 0 {
		vm, err := a.versioned()
		if err != nil {
			return cli.NewCommandError("get", err)
		}
		doc, err = vm.GetConfigByVersion(commandContext(cmd), key, configFlags.version)
		if err != nil {
			return cli.NewCommandError("get", err)
		}
		if doc == nil {
			return cli.NewCommandError("get", &store.Error{Kind: store.KindVersionNotFound, Op: "get", Key: key, Version: configFlags.version})
		}
	} else {
		doc, err = a.manager.GetConfig(commandContext(cmd), key)
		if err != nil {
			return cli.NewCommandError("get", err)
		}
		if doc == nil {
			return cli.NewCommandError("get", &store.Error{Kind: store.KindNotInitialized, Op: "get", Key: key})
		}
	}
	return a.print(doc)
}

func runMetadata(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	vm, err := a.versioned()
	if err != nil {
		return cli.NewCommandError("metadata", err)
	}
	meta, err := vm.GetConfigMetadata(commandContext(cmd), args[0])
	if err != nil {
		return cli.NewCommandError("metadata", err)
	}
	if meta == nil {
		return cli.NewCommandError("metadata", &store.Error{Kind: store.KindNotInitialized, Op: "metadata", Key: args[0]})
	}
	return a.print(meta)
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	vm, err := a.versioned()
	if err != nil {
		return cli.NewCommandError("history", err)
	}
	history, err := vm.GetVersionHistory(commandContext(cmd), args[0], configFlags.limit)
	if err != nil {
		return cli.NewCommandError("history", err)
	}

	if a.format != cli.FormatText {
		return a.print(history)
	}
	table := cli.Table{Headers: []string{"VERSION", "TYPE", "CREATED", "BY", "DESCRIPTION"}}
	for _, h := range history {
		table.Rows = append(table.Rows, []string{
			strconv.Itoa(h.Version),
			string(h.ChangeType),
			h.CreatedAt.Local().Format(time.RFC3339),
			h.CreatedBy,
			h.Description,
		})
	}
	return a.print(table)
}

func runRollback(cmd *cobra.Command, args []string) error {
	target, err := strconv.Atoi(args[1])
	if err != nil {
		return cli.NewCommandError("rollback", &store.Error{Kind: store.KindInvalidArgument, Op: "rollback", Key: args[0], Err: fmt.Errorf("invalid version %q", args[1])})
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	vm, err := a.versioned()
	if err != nil {
		return cli.NewCommandError("rollback", err)
	}
	version, err := vm.RollbackToVersion(commandContext(cmd), args[0], target, configFlags.description, currentUser())
	if err != nil {
		return cli.NewCommandError("rollback", err)
	}

	if err := (logApplier{logger: a.logger}).ApplyVersion(commandContext(cmd), args[0], version); err != nil {
		return cli.NewCommandError("rollback", err)
	}
	return a.print(fmt.Sprintf("%s rolled back to version %d as version %d", args[0], target, version))
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.manager.DeleteConfig(commandContext(cmd), args[0]); err != nil {
		return cli.NewCommandError("delete", err)
	}
	return a.print(fmt.Sprintf("%s deleted", args[0]))
}

func runKeys(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	keys, err := a.manager.GetAllKeys(commandContext(cmd))
	if err != nil {
		return cli.NewCommandError("keys", err)
	}

	if a.format != cli.FormatText {
		return a.print(keys)
	}
	vm, versioned := store.AsVersionManager(a.manager)
	table := cli.Table{Headers: []string{"KEY", "VERSION", "VERSIONS", "MODIFIED"}}
	for _, key := range keys {
		row := []string{key, "-", "-", "-"}
		if versioned {
			if meta, err := vm.GetConfigMetadata(commandContext(cmd), key); err == nil && meta != nil {
				row = []string{
					key,
					strconv.Itoa(meta.CurrentVersion),
					strconv.Itoa(meta.TotalVersions),
					meta.LastModified.Local().Format(time.RFC3339),
				}
			}
		}
		table.Rows = append(table.Rows, row)
	}
	return a.print(table)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	if configFlags.all == (len(args) == 1) {
		return cli.NewCommandError("cleanup", &store.Error{Kind: store.KindInvalidArgument, Op: "cleanup", Err: fmt.Errorf("give either a key or --all")})
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	vm, err := a.versioned()
	if err != nil {
		return cli.NewCommandError("cleanup", err)
	}
	keep := configFlags.keep
	if keep == 0 {
		keep = a.cfg.Retention.KeepVersions
	}

	if !configFlags.all {
		deleted, err := vm.CleanupOldVersions(commandContext(cmd), args[0], keep)
		if err != nil {
			return cli.NewCommandError("cleanup", err)
		}
		return a.print(fmt.Sprintf("%s: deleted %d versions, kept %d", args[0], deleted, keep))
	}

	pruner := retention.NewPruner(vm, &retention.Config{KeepVersions: keep}, a.logger, a.collector)
	report, err := pruner.Prune(commandContext(cmd))
	if a.format != cli.FormatText {
		if perr := a.print(report); perr != nil {
			return perr
		}
	} else {
		if perr := a.print(fmt.Sprintf("examined %d keys, deleted %d versions", report.Keys, report.Deleted)); perr != nil {
			return perr
		}
	}
	if err != nil {
		return cli.NewCommandError("cleanup", err)
	}
	return nil
}

package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/modelrouter/pkg/cli"
	"mercator-hq/modelrouter/pkg/merge"
)

var mergeFlags struct {
	preview      bool
	backup       bool
	cleanup      bool
	noBackup     bool
	fromVersions bool
}

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge legacy {prefix}@{N}.json files into version 1",
	Long: `Merge legacy numbered configuration snapshots into the canonical key.

Files named {merge.prefix}@{N}.json in store.path are merged oldest first and
stored as version 1 of store.config_key, replacing its history. The key's
stored versions and the merged files are moved to a backup_<millis>
directory (or the files are deleted with --no-backup). Files that cannot be
read are reported and left in place.

With --from-versions the stored versions of store.config_key are merged
instead and the result is appended as a new version, keeping history.

Values a later source overrides are listed as conflicts.

Examples:
  # Show what a merge would produce
  routerstore merge --preview

  # Merge
  routerstore merge

  # Fold the stored versions of the canonical key into a new version
  routerstore merge --from-versions

  # Only copy the legacy files to a backup directory
  routerstore merge --backup-only

  # Only delete the legacy files
  routerstore merge --cleanup-legacy`,
	Args: cobra.NoArgs,
	RunE: runMerge,
}

func init() {
	rootCmd.AddCommand(mergeCmd)

	mergeCmd.Flags().BoolVar(&mergeFlags.preview, "preview", false, "print the merged document without writing anything")
	mergeCmd.Flags().BoolVar(&mergeFlags.backup, "backup-only", false, "copy legacy files to a backup directory and stop")
	mergeCmd.Flags().BoolVar(&mergeFlags.cleanup, "cleanup-legacy", false, "delete legacy files and stop")
	mergeCmd.Flags().BoolVar(&mergeFlags.noBackup, "no-backup", false, "delete merged files instead of moving them to a backup directory")
	mergeCmd.Flags().BoolVar(&mergeFlags.fromVersions, "from-versions", false, "merge the stored versions of the canonical key instead of legacy files")
	mergeCmd.MarkFlagsMutuallyExclusive("preview", "backup-only", "cleanup-legacy")
	mergeCmd.MarkFlagsMutuallyExclusive("from-versions", "backup-only", "cleanup-legacy")
}

func runMerge(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	vm, err := a.versioned()
	if err != nil {
		return cli.NewCommandError("merge", err)
	}
	if mergeFlags.noBackup {
		a.cfg.Merge.Backup = false
	}
	svc := a.mergeService(vm)
	ctx := commandContext(cmd)

	if mergeFlags.preview {
		preview, err := svc.Preview(ctx)
		if mergeFlags.fromVersions {
			preview, err = svc.PreviewVersions(ctx)
		}
		if err != nil {
			return cli.NewCommandError("merge", err)
		}
		if a.format != cli.FormatText {
			return a.print(preview)
		}
		return a.printPreview(preview)
	}

	var res *merge.Result
	switch {
	case mergeFlags.backup:
		res = svc.Backup(ctx)
	case mergeFlags.cleanup:
		res = svc.CleanupLegacyFiles(ctx)
	case mergeFlags.fromVersions:
		res = svc.MergeVersions(ctx)
	default:
		res = svc.Merge(ctx)
	}

	if a.format != cli.FormatText {
		if err := a.print(res); err != nil {
			return err
		}
	} else if err := a.printResult(res); err != nil {
		return err
	}

	if !res.Success && len(res.Errors) > 0 {
		return cli.NewCommandError("merge", errors.New(res.Message))
	}
	return nil
}

func (a *app) printPreview(p *merge.Preview) error {
	table := cli.Table{Headers: []string{"VERSION", "FILE"}}
	for _, src := range p.Sources {
		table.Rows = append(table.Rows, []string{strconv.Itoa(src.Version), src.Path})
	}
	for _, v := range p.Versions {
		table.Rows = append(table.Rows, []string{strconv.Itoa(v), "(stored)"})
	}
	if err := a.print(table); err != nil {
		return err
	}

	s := p.Stats
	summary := fmt.Sprintf("\n%d of %d sources readable; %d service types; instances %d -> %d (%d duplicates removed)",
		p.TotalFiles, len(p.Sources)+len(p.Versions), s.MergedServiceTypes, s.TotalSourceInstances, s.MergedInstances, s.InstanceReduction)
	if err := a.print(summary); err != nil {
		return err
	}
	var notes strings.Builder
	writeNotes(&notes, p.Conflicts, p.Warnings, p.Errors)
	if notes.Len() > 0 {
		if err := a.print(strings.TrimPrefix(notes.String(), "\n")); err != nil {
			return err
		}
	}
	if p.Merged != nil {
		if err := a.print("\nmerged document:"); err != nil {
			return err
		}
		return a.print(p.Merged)
	}
	return nil
}

func (a *app) printResult(res *merge.Result) error {
	var b strings.Builder
	b.WriteString(res.Message)
	if res.BackupDir != "" {
		fmt.Fprintf(&b, "\nbackup: %s", res.BackupDir)
	}
	writeNotes(&b, res.Conflicts, res.Warnings, res.Errors)
	return a.print(b.String())
}

func writeNotes(b *strings.Builder, conflicts, warnings, errs []string) {
	for _, c := range conflicts {
		fmt.Fprintf(b, "\nconflict: %s", c)
	}
	for _, w := range warnings {
		fmt.Fprintf(b, "\nwarning: %s", w)
	}
	for _, e := range errs {
		fmt.Fprintf(b, "\nerror: %s", e)
	}
}

/*
Package cli holds the helpers shared by the routerstore commands.

Output Formatting:

Commands accept --output text|json|yaml. Tabular results use Table so the
text form lines up in columns and the structured forms emit one object per
row:

	format, err := cli.ParseFormat(flags.output)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, table)

Errors and Exit Codes:

Commands wrap failures in CommandError. ExitCode maps the store error kinds
to distinct exit codes so scripts can tell a missing key from an I/O
failure.

Signal Handling:

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()
*/
package cli

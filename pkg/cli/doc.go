/*
Package cli provides shared helpers for the devguard command: tabular
and JSON output, typed command errors with exit-code mapping, and
signal-driven shutdown.

Output:

	table := cli.NewTable("ID", "SEVERITY", "STATE")
	for _, a := range alerts {
		table.AddRow(a.ID, a.Severity, string(a.State))
	}
	table.Render(os.Stdout)

	cli.WriteJSON(os.Stdout, alerts)

Errors:

Commands wrap failures in CommandError or ConfigError; Execute maps the
error to a process exit code with cli.ExitCode (2 for config and
validation problems, 3 for unknown ids, 1 otherwise).

Shutdown:

	ctx := cli.SetupSignalHandler()
	// ctx is cancelled on SIGINT/SIGTERM
*/
package cli

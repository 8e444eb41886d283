/*
Package cli provides helpers shared by the steward commands: output
formatting, step progress, exit codes and signal handling.

Results that implement Tabular render as aligned text or CSV; everything
can be rendered as JSON:

	format, err := cli.ParseOutputFormat(flagOutput)
	if err != nil {
		return err
	}
	return cli.NewFormatter(format).FormatTo(os.Stdout, result)

Commands return errors and main maps them with ExitCode, so a failed audit
verification exits with ExitIntegrity and an invalid request with
ExitUsage.
*/
package cli

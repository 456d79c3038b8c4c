// Package cli holds helpers shared by the gateway's commands: table output
// in text, JSON or CSV, colored status lines, signal handling and exit
// codes.
//
//	tbl := &cli.Table{Headers: []string{"ID", "Label"}}
//	tbl.Append("1", "Nano Banana Pro")
//	_ = cli.NewFormatter(cli.FormatText).FormatTo(os.Stdout, tbl)
//
//	ctx, stop := cli.SetupSignalHandler(context.Background())
//	defer stop()
package cli

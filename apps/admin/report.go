package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/trezcool/feedesk/core"
)

func (cli *commandLine) report(batchID string) error {
	ctx := context.Background()
	summaries, err := cli.agg.InstallmentBreakdown(ctx, cliCaller, batchID)
	if err != nil {
		return err
	}
	totals, err := cli.agg.BatchTotals(ctx, cliCaller, batchID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.output(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "INSTALLMENT\tDUE DATE\tCOLLECTED\tEXPECTED\tPERCENT")
	for _, s := range summaries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s%%\n",
			s.InstallmentNumber,
			s.DueDate.Format("2006-01-02"),
			s.Collected.StringFixed(core.MoneyPlaces),
			s.Expected.StringFixed(core.MoneyPlaces),
			s.Percentage.StringFixed(2),
		)
	}
	fmt.Fprintf(w, "TOTAL\t%d students\t%s\t%s\t%s%%\n",
		totals.Enrolled,
		totals.TotalPaid.StringFixed(core.MoneyPlaces),
		totals.TotalFees.StringFixed(core.MoneyPlaces),
		totals.Percentage.StringFixed(2),
	)
	fmt.Fprintf(w, "OUTSTANDING\t\t%s\t\t\n", totals.Outstanding.StringFixed(core.MoneyPlaces))
	return w.Flush()
}

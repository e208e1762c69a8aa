package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pitabwire/suitekit/internal/observability"
	"github.com/pitabwire/suitekit/internal/query"
	"github.com/pitabwire/suitekit/model"
)

type pageFlags struct {
	page     int
	pageSize int
}

func (f *pageFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.page, "page", 1, "Page number, starting at 1")
	cmd.Flags().IntVar(&f.pageSize, "page-size", model.DefaultPageSize, "Results per page")
}

func (f *pageFlags) params() model.PageParams {
	return model.PageParams{Page: f.page, PageSize: f.pageSize}.Normalize()
}

func newTransactionsCmd(appFn func() *app) *cobra.Command {
	parent := &cobra.Command{Use: "transactions", Short: "Finance transactions"}

	var account int64
	var pf pageFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List the transactions of a bank account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFn()
			ctx := cmd.Context()
			a.nav.Navigate(ctx, fmt.Sprintf("/finance/bank-accounts/%d/transactions", account))

			page, status, err := a.finance.TransactionsQuery(ctx, a.rctx, account, pf.params())
			if err != nil {
				return a.report(ctx, "load transactions", err)
			}
			logQuery(a, "finance.transactions", status)

			tw := newTable(a.out, "ID", "DATE", "DESCRIPTION", "AMOUNT", "CURRENCY", "STATUS")
			for _, tx := range page.Results {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", tx.ID, tx.Date, tx.Description, tx.Amount, tx.Currency, tx.Status)
			}
			return finishTable(tw, a.out, page.Count, len(page.Results), pf.params())
		},
	}
	list.Flags().Int64Var(&account, "account", 0, "Bank account id")
	_ = list.MarkFlagRequired("account")
	pf.register(list)
	parent.AddCommand(list)
	return parent
}

func newContactsCmd(appFn func() *app) *cobra.Command {
	parent := &cobra.Command{Use: "contacts", Short: "CRM contacts"}

	var pf pageFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List contacts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFn()
			ctx := cmd.Context()
			a.nav.Navigate(ctx, "/crm/contacts")

			page, status, err := a.crm.ContactsQuery(ctx, a.rctx, pf.params())
			if err != nil {
				return a.report(ctx, "load contacts", err)
			}
			logQuery(a, "crm.contacts", status)

			tw := newTable(a.out, "ID", "NAME", "EMAIL", "COMPANY")
			for _, c := range page.Results {
				fmt.Fprintf(tw, "%d\t%s %s\t%s\t%s\n", c.ID, c.FirstName, c.LastName, c.Email, c.Company)
			}
			return finishTable(tw, a.out, page.Count, len(page.Results), pf.params())
		},
	}
	pf.register(list)
	parent.AddCommand(list)
	return parent
}

func newItemsCmd(appFn func() *app) *cobra.Command {
	parent := &cobra.Command{Use: "items", Short: "Inventory items"}

	var warehouse int64
	var pf pageFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List the items stocked in a warehouse",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFn()
			ctx := cmd.Context()
			a.nav.Navigate(ctx, fmt.Sprintf("/inventory/warehouses/%d/items", warehouse))

			page, status, err := a.inventory.ItemsQuery(ctx, a.rctx, warehouse, pf.params())
			if err != nil {
				return a.report(ctx, "load items", err)
			}
			logQuery(a, "inventory.items", status)

			tw := newTable(a.out, "ID", "SKU", "NAME", "QUANTITY")
			for _, it := range page.Results {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", it.ID, it.SKU, it.Name, it.Quantity)
			}
			return finishTable(tw, a.out, page.Count, len(page.Results), pf.params())
		},
	}
	list.Flags().Int64Var(&warehouse, "warehouse", 0, "Warehouse id")
	_ = list.MarkFlagRequired("warehouse")
	pf.register(list)
	parent.AddCommand(list)
	return parent
}

func newConversationsCmd(appFn func() *app) *cobra.Command {
	parent := &cobra.Command{Use: "conversations", Short: "Inbox conversations"}

	var inboxID int64
	var pf pageFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List the conversations of an inbox",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a := appFn()
			ctx := cmd.Context()
			a.nav.Navigate(ctx, fmt.Sprintf("/inbox/%d/conversations", inboxID))

			page, status, err := a.inbox.ConversationsQuery(ctx, a.rctx, inboxID, pf.params())
			if err != nil {
				return a.report(ctx, "load conversations", err)
			}
			logQuery(a, "inbox.conversations", status)

			tw := newTable(a.out, "ID", "SUBJECT", "STATUS", "UNREAD")
			for _, c := range page.Results {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%d\n", c.ID, c.Subject, c.Status, c.UnreadCount)
			}
			return finishTable(tw, a.out, page.Count, len(page.Results), pf.params())
		},
	}
	list.Flags().Int64Var(&inboxID, "inbox", 0, "Inbox id")
	_ = list.MarkFlagRequired("inbox")
	pf.register(list)
	parent.AddCommand(list)
	return parent
}

func logQuery(a *app, name string, status query.Status) {
	a.logger.Debug("query served", zap.String("query", name), zap.Stringer("status", status))
}

func newTable(w io.Writer, headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, h := range headers {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, h)
	}
	fmt.Fprintln(tw)
	return tw
}

func finishTable(tw *tabwriter.Writer, w io.Writer, total, shown int, params model.PageParams) error {
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nShowing %d of %d (page %d, %d per page)\n", shown, total, params.Page, params.PageSize)
	return err
}

// runStatus prints every health check and reports whether all passed.
func runStatus(cmd *cobra.Command, a *app) bool {
	report := observability.RunChecks(cmd.Context(), a.checks)

	fmt.Fprintf(a.out, "suitectl %s (%s)\n", report.Version, report.Commit)
	tw := newTable(a.out, "CHECK", "STATUS", "LATENCY", "ERROR")
	for _, name := range report.Names() {
		r := report.Checks[name]
		fmt.Fprintf(tw, "%s\t%s\t%dms\t%s\n", name, r.Status, r.LatencyMs, r.Error)
	}
	_ = tw.Flush()
	fmt.Fprintf(a.out, "\nOverall: %s\n", report.Status)
	return report.Healthy()
}

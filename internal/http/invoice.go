package http

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fjod/qrorder/internal/domain"
)

func writeInvoice(w io.Writer, receipt domain.Receipt, contactEmail string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "ORDER CONFIRMED")
	fmt.Fprintf(tw, "Order token:\t%s\n", receipt.PaymentID)
	fmt.Fprintf(tw, "Customer:\t%s\n", receipt.CustomerName)
	fmt.Fprintf(tw, "Table:\t%s\n", receipt.TableNumber)
	fmt.Fprintf(tw, "Paid at:\t%s\n", receipt.PaidAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "Item\tQty\tPrice\tSubtotal")
	for _, item := range receipt.Items {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n",
			item.Name, item.Quantity, item.UnitPrice.StringFixed(2), item.Subtotal().StringFixed(2))
	}
	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "Total\t\t\t%s\n", receipt.Total.StringFixed(2))
	if contactEmail != "" {
		fmt.Fprintln(tw)
		fmt.Fprintf(tw, "Questions about your order? Contact %s\n", contactEmail)
	}
	return tw.Flush()
}

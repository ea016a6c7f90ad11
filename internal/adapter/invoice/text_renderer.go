package invoice

import (
	"bytes"
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"

	"github.com/rl1809/lending/internal/port"
)

// TextRenderer renders a plain-text invoice suitable for a mail attachment.
type TextRenderer struct{}

var _ port.InvoiceRenderer = TextRenderer{}

func (TextRenderer) Render(_ context.Context, s port.InvoiceSnapshot) ([]byte, error) {
	o := s.Order
	if o.ID == "" {
		return nil, fmt.Errorf("render invoice: order id is empty")
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "INVOICE %s\n", o.ID)
	fmt.Fprintf(&buf, "Customer: %s\n", s.CustomerEmail)
	fmt.Fprintf(&buf, "Placed:   %s\n", o.CreatedAt.UTC().Format("Jan 2, 2006 15:04 MST"))
	fmt.Fprintf(&buf, "Status:   %s\n\n", o.Status)

	tw := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Title\tQuantity\tUnit\tAmount\t")
	for _, it := range o.Items {
		name := s.TitleNames[it.TitleID]
		if name == "" {
			name = it.TitleID
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n",
			name, english.Plural(it.Quantity, "copy", "copies"), Money(it.UnitPriceCents), Money(it.LineCents()))
	}
	if err := tw.Flush(); err != nil {
		return nil, fmt.Errorf("render invoice: %w", err)
	}

	fmt.Fprintf(&buf, "\nSubtotal: %s\n", Money(o.SubtotalCents))
	if o.DeliveryFeeCents == 0 {
		fmt.Fprintf(&buf, "Delivery: waived\n")
	} else {
		fmt.Fprintf(&buf, "Delivery: %s\n", Money(o.DeliveryFeeCents))
	}
	fmt.Fprintf(&buf, "Total:    %s\n", Money(o.TotalCents))
	return buf.Bytes(), nil
}

// Money formats integer cents as dollars with thousands separators.
func Money(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%s.%02d", sign, humanize.Comma(cents/100), cents%100)
}

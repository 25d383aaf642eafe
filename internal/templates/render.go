package templates

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Riboost-Studio/print-agent/internal/model"
)

const (
	missingValue       = "N/A"
	defaultDeliveryETA = "30-45 min"
	dateLayout         = "02/01/2006"
	timeLayout         = "15:04:05"
)

// Render lays out a job with the named template. Unknown names silently use
// the default template. Render performs no I/O and its output depends only
// on its arguments.
func (c *Catalog) Render(name string, job *model.PrintJob) model.RenderedTicket {
	t := c.Resolve(name)
	r := headerReplacer(job)

	return model.RenderedTicket{
		JobID:    job.ID,
		Template: t.Name,
		Header:   replaceLines(r, t.Header),
		Body:     renderItems(t.ItemFormat, job.Items),
		Footer:   replaceLines(r, t.Footer),
	}
}

func headerReplacer(job *model.PrintJob) *strings.Replacer {
	date, clock := missingValue, missingValue
	if !job.ReceivedAt.IsZero() {
		date = job.ReceivedAt.Format(dateLayout)
		clock = job.ReceivedAt.Format(timeLayout)
	}
	eta := job.EstimatedDelivery
	if eta == "" {
		eta = defaultDeliveryETA
	}

	return strings.NewReplacer(
		"{id}", orMissing(job.SourceReference),
		"{table}", orMissing(job.TableNumber),
		"{waiter}", orMissing(job.WaiterName),
		"{date}", date,
		"{time}", clock,
		"{customer}", orMissing(job.Customer),
		"{phone}", orMissing(job.Phone),
		"{address}", orMissing(job.Address),
		"{total}", currency(job.Total),
		"{subtotal}", currency(job.Subtotal),
		"{tax}", currency(job.Tax),
		"{discount}", currency(job.Discount),
		"{delivery_fee}", currency(job.DeliveryFee),
		"{eta}", eta,
	)
}

func replaceLines(r *strings.Replacer, lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = r.Replace(l)
	}
	return out
}

// renderItems produces, per item and in order, the product line, then the
// notes line and the price line when present.
func renderItems(f model.ItemFormat, items []model.LineItem) []string {
	body := make([]string, 0, len(items)*2)
	for _, item := range items {
		r := strings.NewReplacer(
			"{quantity}", strconv.Itoa(item.Quantity),
			"{name}", orMissing(item.Name),
			"{notes}", item.Notes,
			"{price}", price(item.UnitPrice),
		)
		body = append(body, r.Replace(f.Product))
		if notes := strings.TrimSpace(item.Notes); notes != "" && f.Notes != "" {
			body = append(body, r.Replace(f.Notes))
		}
		if item.UnitPrice != nil && f.Price != "" {
			body = append(body, r.Replace(f.Price))
		}
	}
	return body
}

func orMissing(s string) string {
	if strings.TrimSpace(s) == "" {
		return missingValue
	}
	return s
}

func currency(v *float64) string {
	if v == nil {
		return missingValue
	}
	return "$" + price(v)
}

func price(v *float64) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.2f", *v)
}

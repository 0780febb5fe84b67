package cdnsift

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/cdnsift/cdnsift/data"
)

// Report renders an analysis into console tables. Rendering is strictly
// read-only; the analysis is not modified.
type Report struct {
	out  io.Writer
	topN int
}

// NewReport creates a Report writing to out, showing at most topN rows per
// table.
func NewReport(out io.Writer, topN int) *Report {
	return &Report{out: out, topN: topN}
}

// Print renders the full report: run summary, ranked suspicious sources
// and networks, the block plan and the traffic time patterns.
func (rp *Report) Print(analysis *Analysis) {
	rp.printSummary(analysis.Summary)
	rp.printSuspiciousSources(analysis.SuspiciousSources)
	rp.printSuspiciousNetworks(analysis.SuspiciousNetworks)
	rp.printPlan(analysis.Plan)
	rp.printPatterns(analysis.Patterns)
}

func (rp *Report) printSummary(s data.Summary) {
	fmt.Fprintf(rp.out, "\n== run summary ==\n")
	fmt.Fprintf(rp.out, "distinct sources:    %s\n", humanize.Comma(int64(s.Sources)))
	fmt.Fprintf(rp.out, "total requests:      %s\n", humanize.Comma(s.Requests))
	fmt.Fprintf(rp.out, "total traffic:       %s\n", humanize.IBytes(uint64(s.Bytes)))
	fmt.Fprintf(rp.out, "avg requests/source: %.1f\n", s.AvgRequestsPerSource)
	fmt.Fprintf(rp.out, "avg traffic/source:  %s\n", humanize.IBytes(uint64(s.AvgBytesPerSource)))
}

func (rp *Report) printSuspiciousSources(suspicious []*data.RiskAssessment) {
	fmt.Fprintf(rp.out, "\n== suspicious sources (%d) ==\n", len(suspicious))
	if len(suspicious) == 0 {
		return
	}

	table := rp.newTable([]string{"#", "Source", "Hostname", "Score", "Requests", "Traffic", "Reasons"})

	for i, sa := range suspicious {
		if rp.topN > 0 && i == rp.topN {
			break
		}
		table.Append([]string{
			strconv.Itoa(i + 1),
			sa.Source,
			sa.Hostname,
			fmt.Sprintf("%.1f", sa.Score),
			humanize.Comma(sa.Stats.Requests),
			humanize.IBytes(uint64(sa.Stats.Bytes)),
			abbreviateReasons(sa.Reasons, 2),
		})
	}
	table.Render()
}

func (rp *Report) printSuspiciousNetworks(suspicious []*data.NetworkRiskAssessment) {
	fmt.Fprintf(rp.out, "\n== suspicious networks (%d) ==\n", len(suspicious))
	if len(suspicious) == 0 {
		return
	}

	table := rp.newTable([]string{"#", "Granularity", "Network", "Score", "Members", "Requests", "Traffic"})

	for i, na := range suspicious {
		if rp.topN > 0 && i == rp.topN {
			break
		}
		table.Append([]string{
			strconv.Itoa(i + 1),
			na.Key.Group,
			na.Key.CIDR,
			fmt.Sprintf("%.1f", na.Score),
			strconv.Itoa(na.Stats.MemberCount),
			humanize.Comma(na.Stats.Requests),
			humanize.IBytes(uint64(na.Stats.Bytes)),
		})
	}
	table.Render()
}

func (rp *Report) printPlan(plan *data.BlockPlan) {
	fmt.Fprintf(rp.out, "\n== block plan ==\n")
	fmt.Fprintf(rp.out, "total suspicious: %d, high risk: %d, medium risk: %d\n",
		plan.Stats.TotalSuspicious, plan.Stats.HighRisk, plan.Stats.MediumRisk)
	fmt.Fprintf(rp.out, "candidate networks: %d IPv4, %d IPv6\n",
		plan.Stats.SuggestedIPv4Networks, plan.Stats.SuggestedIPv6Networks)

	if len(plan.ImmediateBlock) > 0 {
		fmt.Fprintf(rp.out, "\nblock immediately (%d):\n", len(plan.ImmediateBlock))
		for _, source := range plan.ImmediateBlock {
			fmt.Fprintf(rp.out, "  %s\n", source)
		}
	}

	if len(plan.MonitorClosely) > 0 {
		fmt.Fprintf(rp.out, "\nmonitor closely (%d):\n", len(plan.MonitorClosely))
		for _, source := range plan.MonitorClosely {
			fmt.Fprintf(rp.out, "  %s\n", source)
		}
	}

	if len(plan.NetworkBlocks) > 0 {
		fmt.Fprintf(rp.out, "\nsuggested network blocks (%d):\n", len(plan.NetworkBlocks))
		for _, cidr := range sortedGroupKeysOf(plan.NetworkBlocks) {
			fmt.Fprintf(rp.out, "  %s - %s\n", cidr, plan.NetworkBlocks[cidr])
		}
	}
}

func (rp *Report) printPatterns(patterns *TimePatterns) {
	if patterns == nil || patterns.Daily.Size() == 0 {
		return
	}

	fmt.Fprintf(rp.out, "\n== traffic by day ==\n")
	table := rp.newTable([]string{"Day", "Requests"})
	for _, dc := range patterns.DailyCounts() {
		table.Append([]string{dc.Key, humanize.Comma(dc.Requests)})
	}
	table.Render()

	fmt.Fprintf(rp.out, "\n== traffic by hour of day ==\n")
	table = rp.newTable([]string{"Hour", "Requests"})
	for _, hc := range patterns.HourOfDayCounts() {
		table.Append([]string{hc.Key, humanize.Comma(hc.Requests)})
	}
	table.Render()
}

func (rp *Report) newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(rp.out)
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

// abbreviateReasons keeps a reason list short enough for one table cell.
func abbreviateReasons(reasons []string, max int) string {
	if len(reasons) <= max {
		return strings.Join(reasons, ", ")
	}
	return fmt.Sprintf("%s... (+%d)", strings.Join(reasons[:max], ", "), len(reasons)-max)
}

func sortedGroupKeysOf(blocks map[string]string) []string {
	keys := make([]string, 0, len(blocks))
	for cidr := range blocks {
		keys = append(keys, cidr)
	}
	sort.Strings(keys)
	return keys
}

package main

import (
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"sherockets/adapters/store"
	"sherockets/domain/core"
	"sherockets/domain/effects"
	"sherockets/domain/run"
	"sherockets/domain/study"
	"sherockets/internal/analysis"
)

var (
	bold      = color.New(color.Bold)
	dim       = color.New(color.Faint)
	tierColor = map[effects.Tier]*color.Color{
		effects.TierP001:     color.New(color.FgGreen, color.Bold),
		effects.TierP01:      color.New(color.FgGreen),
		effects.TierP05:      color.New(color.FgCyan),
		effects.TierMarginal: color.New(color.FgYellow),
		effects.TierNS:       color.New(color.Faint),
		effects.TierExcluded: color.New(color.FgRed),
	}
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

// num renders NA for values that could not be computed
func num(x float64, prec int) string {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return "NA"
	}
	return fmt.Sprintf("%.*f", prec, x)
}

func pval(p float64) string {
	if math.IsNaN(p) {
		return "NA"
	}
	if p < 0.001 {
		return "<0.001"
	}
	return fmt.Sprintf("%.3f", p)
}

func tier(t effects.Tier) string {
	if c, ok := tierColor[t]; ok {
		return c.Sprint(string(t))
	}
	return string(t)
}

func printReport(w io.Writer, r *analysis.Report) {
	bold.Fprintf(w, "%s: %d choice sets, %s coding, %s significance\n", r.Study, r.ChoiceSets, r.Scheme, r.Method)
	fmt.Fprintf(w, "run %s  dataset %s\n", r.RunID, r.Dataset)
	fmt.Fprintf(w, "log-likelihood %s (null %s)  pseudo-R2 %s  iterations %d\n\n",
		num(r.Fit.LogLikelihood, 2), num(r.Fit.NullLogLik, 2), num(r.Fit.PseudoR2, 4), r.Fit.Iterations)

	printEstimates(w, r.Estimates)

	if rs := r.Resampling; rs != nil {
		fmt.Fprintf(w, "\n%s replicates: %d/%d succeeded (seed %d)\n", rs.Method, rs.Succeeded, rs.Requested, rs.Seed)
	}
	printWarnings(w, r.Warnings)
}

func printEstimates(w io.Writer, estimates []effects.EffectEstimate) {
	tw := newTable(w)
	fmt.Fprintln(tw, "ATTRIBUTE\tLEVEL\tCOEF\tSE\t95% CI\tP\tAME (pp)\tSIG")
	for _, e := range estimates {
		if e.Status != effects.StatusIncluded {
			fmt.Fprintf(tw, "%s\t%s\t\t\t\t\t\t%s\n", e.Attribute, e.LevelLabel, tier(e.Tier)+dim.Sprintf(" %s %s", e.Status, e.Reason))
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t[%s, %s]\t%s\t%s\t%s\n",
			e.Attribute, e.LevelLabel,
			num(e.Coefficient, 3), num(e.StdError, 3),
			num(e.CI.Lower, 3), num(e.CI.Upper, 3),
			pval(e.PValue), num(e.AME, 1), tier(e.Tier))
	}
	tw.Flush()
}

func printWarnings(w io.Writer, warnings []string) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, msg := range warnings {
		color.New(color.FgYellow).Fprintf(w, "warning: %s\n", msg)
	}
}

func printShares(w io.Writer, t analysis.ShareTable, sets int) {
	bold.Fprintf(w, "%d choice sets, alternative A chosen %.1f%%\n\n", sets, 100*t.ChoseA)
	tw := newTable(w)
	fmt.Fprintln(tw, "ATTRIBUTE\tLEVEL\tSHOWN\tCHOSEN\tSHARE\tIN A\tIN B")
	for _, row := range t.Rows {
		if !row.Observed {
			fmt.Fprintf(tw, "%s\t%s\t0\t0\t%s\t\t\n", row.Attribute, row.LevelLabel, dim.Sprint("not shown"))
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.1f%%\t%.1f%%\t%.1f%%\n",
			row.Attribute, row.LevelLabel, row.Tally.Appearances, row.Tally.Chosen,
			100*row.Share, 100*row.ShareInA, 100*row.ShareInB)
	}
	tw.Flush()
}

func printImportance(w io.Writer, s *study.Study, worths map[string][]analysis.PartWorth, importance []analysis.Importance) {
	bold.Fprintln(w, "Part-worths")
	tw := newTable(w)
	for _, attr := range s.Attributes {
		for _, pw := range worths[attr.Name] {
			mark := ""
			if !pw.Estimated {
				mark = dim.Sprint("(reference or excluded)")
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", attr.Name, pw.Level, num(pw.Utility, 3), mark)
		}
	}
	tw.Flush()

	fmt.Fprintln(w)
	bold.Fprintln(w, "Relative importance")
	tw = newTable(w)
	for _, imp := range importance {
		bar := strings.Repeat("#", int(math.Round(imp.Percent/2)))
		fmt.Fprintf(tw, "%s\t%5.1f%%\t%s\n", imp.Attribute, imp.Percent, bar)
	}
	tw.Flush()
}

func printRatings(w io.Writer, r analysis.RatingReport) {
	bold.Fprintf(w, "%s: %d rated choice sets\n\n", r.Kind, r.Rated)
	tw := newTable(w)
	fmt.Fprintln(tw, "ATTRIBUTE\tLEVEL\tN\tMEAN\tSD")
	for _, l := range r.Levels {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", l.Attribute, l.Level, l.Count, num(l.Mean, 2), num(l.SD, 2))
	}
	tw.Flush()

	if len(r.Contrasts) == 0 {
		return
	}
	fmt.Fprintln(w)
	tw = newTable(w)
	fmt.Fprintln(tw, "CONTRAST\tMEANS\tT\tDF\tP\tD\tSIG")
	for _, c := range r.Contrasts {
		if !c.Tested {
			fmt.Fprintf(tw, "%s vs %s\t\t\t\t\t\t%s\n", c.Level1, c.Level2, dim.Sprint("not tested, "+c.Skipped))
			continue
		}
		fmt.Fprintf(tw, "%s vs %s\t%s / %s\t%s\t%s\t%s\t%s\t%s\n",
			c.Level1, c.Level2, num(c.Mean1, 2), num(c.Mean2, 2),
			num(*c.T, 2), num(*c.DF, 1), pval(*c.PValue), num(c.CohensD, 2), tier(effects.TierFor(*c.PValue)))
	}
	tw.Flush()
}

func printSubgroups(w io.Writer, results []analysis.SubgroupResult) {
	for i, res := range results {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if res.Skipped != "" {
			bold.Fprintf(w, "group %s (%d choice sets): ", res.Group, res.ChoiceSets)
			dim.Fprintf(w, "skipped, %s\n", res.Skipped)
			continue
		}
		bold.Fprintf(w, "group %s (%d choice sets, pseudo-R2 %s)\n", res.Group, res.ChoiceSets, num(res.Report.Fit.PseudoR2, 4))
		printEstimates(w, res.Report.Estimates)
		printWarnings(w, res.Report.Warnings)
	}
}

func printMarket(w io.Writer, shares []analysis.MarketShare) {
	tw := newTable(w)
	fmt.Fprintln(tw, "PROFILE\tUTILITY\tSHARE")
	for _, s := range shares {
		fmt.Fprintf(tw, "%s\t%s\t%.1f%%\n", s.Profile, num(s.Utility, 3), 100*s.Share)
	}
	tw.Flush()
}

func printRuns(w io.Writer, runs []run.Summary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no stored runs")
		return
	}
	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tCREATED\tSTUDY\tDATASET\tCODING\tMETHOD\tSETS\tPSEUDO-R2")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.CreatedAt.Format("2006-01-02 15:04"), r.Study, core.Hash(r.Dataset).Short(),
			r.Scheme, r.Method, r.ChoiceSets, num(r.PseudoR2, 4))
	}
	tw.Flush()
}

func printRun(w io.Writer, r *run.Run) {
	m := r.Manifest
	bold.Fprintf(w, "run %s (%s)\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "study %s  dataset %s  %d choice sets\n", m.Study, m.Dataset, r.ChoiceSets)
	fmt.Fprintf(w, "%s coding, %s significance, fingerprint %s\n\n", m.Scheme, m.Method, m.Fingerprint.Short())
	printEstimates(w, r.Estimates)
	printWarnings(w, r.Warnings)
}

func printMigrations(w io.Writer, statuses []store.MigrationStatus) {
	tw := newTable(w)
	fmt.Fprintln(tw, "VERSION\tNAME\tSTATE")
	for _, st := range statuses {
		state := color.New(color.FgYellow).Sprint("pending")
		if st.Applied {
			state = color.New(color.FgGreen).Sprint("applied")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", st.Version, st.Name, state)
	}
	tw.Flush()
}

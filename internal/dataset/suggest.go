package dataset

import (
	"fmt"
	"strings"
)

// SuggestInstruction generates a multi-part visualization instruction
// for a table when the user did not supply one. The heuristic favors
// categorical comparisons and numeric distributions, with a tweak for
// genomic-style tables.
func SuggestInstruction(t *Table) string {
	if len(t.Rows) == 0 {
		return "The dataset is empty. Produce a simple chart that explains no records are available."
	}

	var cats, nums []string
	for _, col := range t.Columns {
		switch col.Kind {
		case KindCategorical, KindBool:
			cats = append(cats, col.Name)
		case KindNumeric:
			nums = append(nums, col.Name)
		}
	}

	var parts []string

	if isGenomic(t) {
		siteCol := selectBest(cats, "site_type", "event", "label")
		chromCol := selectBest(cats, "chrom", "chromosome")
		if siteCol != "" && chromCol != "" {
			parts = append(parts, fmt.Sprintf(
				"A ranked bar chart comparing counts of %s values across the most frequent %s entries (top 10 by volume).",
				siteCol, chromCol))
			if strand := selectBest(cats, "strand"); strand != "" {
				parts = append(parts, fmt.Sprintf(
					"A stacked visualization showing how %s splits across %s for the same top %s groupings.",
					siteCol, strand, chromCol))
			}
		}
	}

	if len(parts) == 0 {
		if len(cats) > 0 {
			primary := selectBest(cats, "category", "type", "label")
			if primary == "" {
				primary = cats[0]
			}
			parts = append(parts, fmt.Sprintf(
				"A bar chart of `%s` showing the top categories and their counts.", primary))
			for _, c := range cats {
				if c != primary {
					parts = append(parts, fmt.Sprintf(
						"A grouped bar chart comparing `%s` against `%s`.", primary, c))
					break
				}
			}
		}
		if len(nums) > 0 {
			num := selectBest(nums, "price", "value", "amount", "revenue")
			if num == "" {
				num = nums[0]
			}
			parts = append(parts, fmt.Sprintf(
				"A distribution plot for `%s` with annotations highlighting notable percentiles.", num))
		}
	}

	if len(parts) == 0 {
		parts = append(parts,
			"A simple table-style visualization summarising row counts, since no obvious numeric or categorical columns were detected.")
	}

	var b strings.Builder
	b.WriteString("Create an exploratory figure for the dataset that includes:\n")
	for i, part := range parts {
		fmt.Fprintf(&b, "%d) %s\n", i+1, part)
	}
	b.WriteString("\nGive each panel a descriptive title, label axes clearly, and annotate any notable trends.")
	return b.String()
}

// isGenomic detects splice-site style tables by their column names.
func isGenomic(t *Table) bool {
	names := make(map[string]struct{}, len(t.Columns))
	for _, col := range t.Columns {
		names[strings.ToLower(col.Name)] = struct{}{}
	}
	_, chrom := names["chrom"]
	_, start := names["start"]
	_, end := names["end"]
	_, position := names["position"]
	return (chrom && start && end) || position
}

// selectBest returns the first column whose name matches a preferred
// name (case-insensitive), or "".
func selectBest(cols []string, preferred ...string) string {
	for _, pref := range preferred {
		for _, col := range cols {
			if strings.EqualFold(col, pref) {
				return col
			}
		}
	}
	return ""
}

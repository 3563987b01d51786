// Package reporter renders batch results and writes the updated registry.
//
// Supported output formats:
//   - Console: human-readable sections for terminal display
//   - JSON: structured data format for programmatic consumption
//   - YAML: structured data, the same document as JSON
//
// A console report covers the run summary, the party parse rules that fired,
// the cross-ledger duplicates, the consolidated records and the review items.
// The structured formats carry the same sections filtered by ReportConfig.
//
// Example usage:
//
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{
//		Format:          reporter.FormatJSON,
//		IncludeRecords:  true,
//		IncludeReview:   true,
//		MaxItems:        10,
//	})
//	err = generator.GenerateReport(result, os.Stdout)
//
//	err = reporter.WriteRegistry(result.Registry, file, reporter.FormatYAML)
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"entity-resolution-service/internal/models"
	"entity-resolution-service/internal/parsers"
	"entity-resolution-service/internal/parties"
	"entity-resolution-service/internal/reconciler"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatYAML    OutputFormat = "yaml"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatYAML:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	// Output format
	Format OutputFormat `json:"format" mapstructure:"format"`

	// Detail level options
	IncludeAuditTrail   bool `json:"include_audit_trail" mapstructure:"include_audit_trail"`
	IncludeTransactions bool `json:"include_transactions" mapstructure:"include_transactions"`
	IncludeRecords      bool `json:"include_records" mapstructure:"include_records"`
	IncludeReview       bool `json:"include_review" mapstructure:"include_review"`

	// MaxItems bounds each console list; zero prints everything
	MaxItems int `json:"max_items" mapstructure:"max_items"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:              FormatConsole,
		IncludeAuditTrail:   false,
		IncludeTransactions: false,
		IncludeRecords:      true,
		IncludeReview:       true,
		MaxItems:            10,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxItems < 0 {
		return fmt.Errorf("max items cannot be negative, got %d", c.MaxItems)
	}
	return nil
}

// ReportGenerator generates batch reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport generates a report from a batch result and writes it to the provided writer
func (rg *ReportGenerator) GenerateReport(result *reconciler.Result, writer io.Writer) error {
	if result == nil || result.Summary == nil {
		return fmt.Errorf("batch result cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(rg.filterResultForOutput(result))
	case FormatYAML:
		encoder := yaml.NewEncoder(writer)
		encoder.SetIndent(2)
		if err := encoder.Encode(rg.filterResultForOutput(result)); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// WriteRegistry writes entries in the shape LoadRegistry reads
func WriteRegistry(entries []*models.RegistryEntry, writer io.Writer, format OutputFormat) error {
	doc := parsers.RegistryDocument{Entities: entries}
	if doc.Entities == nil {
		doc.Entities = []*models.RegistryEntry{}
	}

	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(doc)
	case FormatYAML:
		encoder := yaml.NewEncoder(writer)
		encoder.SetIndent(2)
		if err := encoder.Encode(doc); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return fmt.Errorf("registry cannot be written as %s", format)
	}
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(result *reconciler.Result, writer io.Writer) error {
	// Report header
	fmt.Fprintf(writer, "ENTITY RESOLUTION REPORT\n")
	fmt.Fprintf(writer, "Run: %s\n", result.RunID)
	fmt.Fprintf(writer, "Generated: %s\n", result.ProcessedAt.Format(time.RFC3339))
	fmt.Fprintf(writer, "Processing Duration: %v\n\n", result.Summary.ProcessingDuration)

	fmt.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummary(result.Summary, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== MATCHING ===\n")
	rg.printMatching(result, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== PARTY FIELDS ===\n")
	rg.printParseRules(result.Summary, writer)
	fmt.Fprintf(writer, "\n")

	fmt.Fprintf(writer, "=== ENTITIES ===\n")
	rg.printEntities(result.Summary, writer)
	fmt.Fprintf(writer, "\n")

	if rg.config.IncludeAuditTrail && result.Matches != nil && len(result.Matches.Pairs) > 0 {
		fmt.Fprintf(writer, "=== AUDIT TRAIL ===\n")
		rg.printPairs(result, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeTransactions && len(result.Transactions) > 0 {
		fmt.Fprintf(writer, "=== RESOLVED TRANSACTIONS ===\n")
		rg.printTransactions(result.Transactions, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeRecords && len(result.Records) > 0 {
		fmt.Fprintf(writer, "=== CANONICAL RECORDS ===\n")
		rg.printRecords(result.Records, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeReview && result.Review != nil && result.Review.Len() > 0 {
		fmt.Fprintf(writer, "=== REVIEW ===\n")
		rg.printReview(result.Review, writer)
	}

	return nil
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printSummary(summary *reconciler.Summary, writer io.Writer) {
	fmt.Fprintf(writer, "Records:\n")
	fmt.Fprintf(writer, "  Left:     %d\n", summary.LeftRecords)
	fmt.Fprintf(writer, "  Right:    %d\n", summary.RightRecords)
	fmt.Fprintf(writer, "  Rejected: %d\n", summary.RecordsRejected)

	fmt.Fprintf(writer, "\nTransactions:\n")
	fmt.Fprintf(writer, "  Resolved: %d\n", summary.ResolvedTransactions)
	fmt.Fprintf(writer, "  Merged:   %d\n", summary.MergedTransactions)
	fmt.Fprintf(writer, "  Amount:   %s\n", summary.TotalAmount.StringFixed(2))

	fmt.Fprintf(writer, "\nIssues:\n")
	fmt.Fprintf(writer, "  Warnings: %d\n", summary.Warnings)
	fmt.Fprintf(writer, "  Failures: %d\n", summary.RecordFailures)
}

func (rg *ReportGenerator) printMatching(result *reconciler.Result, writer io.Writer) {
	m := result.Summary.Matching
	fmt.Fprintf(writer, "Pairs Compared:   %d\n", m.PairsCompared)
	fmt.Fprintf(writer, "Duplicates:       %d (%.1f%% of left)\n",
		m.Duplicates, rg.calculatePercentage(m.Duplicates, m.LeftRecords))
	fmt.Fprintf(writer, "Possible Matches: %d\n", m.PossibleMatches)
	fmt.Fprintf(writer, "Near Misses:      %d\n", m.Distinct)
	fmt.Fprintf(writer, "Unmatched:        %d left, %d right\n", m.UnmatchedLeft, m.UnmatchedRight)
	fmt.Fprintf(writer, "Undated:          %d\n", m.UndatedRecords)
	fmt.Fprintf(writer, "Ledger Groups:    %d\n", result.Summary.DuplicateGroups)
	fmt.Fprintf(writer, "Contested:        %d\n", len(result.Contested))
}

func (rg *ReportGenerator) printParseRules(summary *reconciler.Summary, writer io.Writer) {
	total := 0
	rules := make([]parties.Rule, 0, len(summary.ParseRules))
	for rule, n := range summary.ParseRules {
		rules = append(rules, rule)
		total += n
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i] < rules[j] })

	for _, rule := range rules {
		n := summary.ParseRules[rule]
		fmt.Fprintf(writer, "%-12s %d (%.1f%%)\n", string(rule)+":", n, rg.calculatePercentage(n, total))
	}
}

func (rg *ReportGenerator) printEntities(summary *reconciler.Summary, writer io.Writer) {
	fmt.Fprintf(writer, "Existing:          %d\n", summary.ExistingEntities)
	fmt.Fprintf(writer, "Newly Proposed:    %d\n", summary.ProposedEntities)
	fmt.Fprintf(writer, "Confirmed Aliases: %d\n", summary.ConfirmedAliases)
	fmt.Fprintf(writer, "Ambiguous Names:   %d\n", summary.AmbiguousMentions)
}

func (rg *ReportGenerator) printPairs(result *reconciler.Result, writer io.Writer) {
	pairs := result.Matches.Pairs
	for i, pair := range pairs {
		if rg.truncate(writer, i, len(pairs)) {
			break
		}
		fmt.Fprintf(writer, "  %d. %s <-> %s, score: %.4f, %s (%s)\n",
			i+1, pair.Left, pair.Right, pair.Score, pair.Label, pair.Relation)
	}
}

func (rg *ReportGenerator) printTransactions(transactions []*models.RawRecord, writer io.Writer) {
	for i, tx := range transactions {
		if rg.truncate(writer, i, len(transactions)) {
			break
		}
		amount := "unknown"
		if tx.Amount.Valid {
			amount = tx.Amount.Decimal.StringFixed(2)
		}
		date := "unknown"
		if tx.HasDate() {
			date = tx.Date.Format("2006-01-02")
		}
		fmt.Fprintf(writer, "  %d. %s: %s, Date: %s, Amount: %s", i+1, tx.Key, tx.Subject, date, amount)
		if from := tx.Field("merged_from"); from != "" {
			fmt.Fprintf(writer, " (merged from %s)", from)
		}
		fmt.Fprintf(writer, "\n")
	}
}

func (rg *ReportGenerator) printRecords(records []*models.CanonicalRecord, writer io.Writer) {
	for i, r := range records {
		if rg.truncate(writer, i, len(records)) {
			break
		}
		fmt.Fprintf(writer, "  %d. [%s #%d] %s (%s)\n", i+1, r.Category, r.EntityID, r.Name, r.Status)
		fmt.Fprintf(writer, "     origins: %s\n", r.OriginIDs)
		fmt.Fprintf(writer, "     roles:   %s\n", r.Roles)

		names := make([]string, 0, len(r.Fields))
		for name := range r.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(writer, "     %s: %s [%s]\n", name, r.Fields[name], r.Provenance[name].Tier)
		}
	}
}

func (rg *ReportGenerator) printReview(review *reconciler.ReviewReport, writer io.Writer) {
	kinds := []reconciler.ReviewKind{
		reconciler.ReviewRecordFailure,
		reconciler.ReviewAmbiguousIdentity,
		reconciler.ReviewConfirmation,
		reconciler.ReviewMalformedField,
	}

	groups := make(map[reconciler.ReviewKind][]reconciler.ReviewItem)
	for _, item := range review.Items {
		groups[item.Kind] = append(groups[item.Kind], item)
	}

	for _, kind := range kinds {
		items := groups[kind]
		if len(items) == 0 {
			continue
		}

		fmt.Fprintf(writer, "%s (%d):\n", strings.ToUpper(strings.ReplaceAll(string(kind), "_", " ")), len(items))
		for i, item := range items {
			if rg.truncate(writer, i, len(items)) {
				break
			}
			fmt.Fprintf(writer, "  - %s", item.Message)
			if item.Origin != "" {
				fmt.Fprintf(writer, " [%s]", item.Origin)
			}
			fmt.Fprintf(writer, "\n")
			for _, c := range item.Candidates {
				fmt.Fprintf(writer, "      candidate #%d %s (%.4f)\n", c.EntityID, c.Name, c.Score)
			}
		}
		fmt.Fprintf(writer, "\n")
	}
}

// Helper methods

// truncate prints the overflow line and reports true once i reaches MaxItems
func (rg *ReportGenerator) truncate(writer io.Writer, i, total int) bool {
	if rg.config.MaxItems > 0 && i >= rg.config.MaxItems {
		fmt.Fprintf(writer, "  ... and %d more\n", total-i)
		return true
	}
	return false
}

func (rg *ReportGenerator) calculatePercentage(part, total int) float64 {
	if total == 0 {
		return 0.0
	}
	return float64(part) / float64(total) * 100.0
}

func (rg *ReportGenerator) filterResultForOutput(result *reconciler.Result) map[string]interface{} {
	output := map[string]interface{}{
		"run_id":       result.RunID,
		"summary":      result.Summary,
		"processed_at": result.ProcessedAt,
	}

	if rg.config.IncludeAuditTrail && result.Matches != nil {
		output["matches"] = result.Matches
		output["duplicate_groups"] = result.DuplicateGroups
		output["contested"] = result.Contested
	}

	if rg.config.IncludeTransactions {
		output["transactions"] = result.Transactions
	}

	if rg.config.IncludeRecords {
		output["records"] = result.Records
	}

	if rg.config.IncludeReview && result.Review != nil {
		output["review"] = result.Review
	}

	return output
}

// Package parties turns a free-text "parties" field into ordered, role-tagged
// mentions.
//
// Parsing is a cascade of mutually exclusive rules evaluated in a fixed order.
// The first rule whose guard accepts the field produces the result:
//
//	placeholder  the whole field is a known "undisclosed" token
//	single       no separators at all
//	lead_marker  a bracketed (lead) marker, split on its last occurrence
//	slash        split on the first "/"
//	co_lead      a short comma list, every name leads
//	syndicate    a long comma list behind a synthetic sentinel lead
//	empty        nothing usable remained
package parties

import (
	"regexp"
	"strings"

	"entity-resolution-service/internal/models"
	"entity-resolution-service/internal/normalize"
	"entity-resolution-service/pkg/errors"
)

// Rule names the cascade step that produced a parse result
type Rule string

const (
	RulePlaceholder Rule = "placeholder"
	RuleSingle      Rule = "single"
	RuleLeadMarker  Rule = "lead_marker"
	RuleSlash       Rule = "slash"
	RuleCoLead      Rule = "co_lead"
	RuleSyndicate   Rule = "syndicate"
	RuleEmpty       Rule = "empty"
)

var (
	leadMarker = regexp.MustCompile(`(?i)[\(\[]\s*lead\s*[\)\]]`)
	dashRun    = regexp.MustCompile(`^[-\s]+$`)
)

// Result is the outcome of parsing one field
type Result struct {
	Field    string                    `json:"field"`
	Mentions []models.PartyMention     `json:"mentions"`
	Rule     Rule                      `json:"rule"`
	Warnings []*errors.ReconcilerError `json:"warnings,omitempty"`
}

// Primary returns the primary-role names in ordinal order
func (r *Result) Primary() []string {
	return r.names(models.RolePrimary)
}

// Secondary returns the secondary-role names in ordinal order
func (r *Result) Secondary() []string {
	return r.names(models.RoleSecondary)
}

func (r *Result) names(role models.Role) []string {
	var names []string
	for _, m := range r.Mentions {
		if m.Role == role {
			names = append(names, m.Name)
		}
	}
	return names
}

// Parser applies the rule cascade. It holds no mutable state and is safe for
// concurrent use.
type Parser struct {
	config       *ParserConfig
	placeholders map[string]struct{}
	rules        []rule
}

type rule struct {
	name    Rule
	applies func(field string) bool
	parse   func(p *Parser, field string, res *Result)
}

// NewParser creates a parser. A nil config selects DefaultParserConfig.
func NewParser(config *ParserConfig) *Parser {
	if config == nil {
		config = DefaultParserConfig()
	}
	p := &Parser{
		config:       config.Clone(),
		placeholders: make(map[string]struct{}, len(config.Placeholders)),
	}
	for _, token := range config.Placeholders {
		p.placeholders[strings.ToLower(strings.TrimSpace(token))] = struct{}{}
	}
	p.rules = []rule{
		{RulePlaceholder, p.isPlaceholder, (*Parser).parsePlaceholder},
		{RuleSingle, hasNoSeparators, (*Parser).parseSingle},
		{RuleLeadMarker, leadMarker.MatchString, (*Parser).parseLeadMarker},
		{RuleSlash, hasSlash, (*Parser).parseSlash},
		{RuleCoLead, always, (*Parser).parseCommaList},
	}
	return p
}

// Config returns a copy of the parser configuration
func (p *Parser) Config() *ParserConfig {
	return p.config.Clone()
}

// Sentinel returns the canonical undisclosed-lead name
func (p *Parser) Sentinel() string {
	return p.config.Sentinel
}

// Parse splits field into mentions. It never fails: discarded names are
// reported as MalformedField warnings on the result.
func (p *Parser) Parse(field string) *Result {
	res := &Result{Field: field}
	repaired := normalize.Repair(field)
	for _, r := range p.rules {
		if !r.applies(repaired) {
			continue
		}
		res.Rule = r.name
		r.parse(p, repaired, res)
		break
	}
	if len(res.Mentions) == 0 {
		res.Rule = RuleEmpty
		res.Warnings = append(res.Warnings,
			errors.MalformedFieldError("parties", field, "no valid party name"))
	}
	return res
}

func (p *Parser) isPlaceholder(field string) bool {
	value := strings.ToLower(normalize.Clean(field))
	if len(value) <= p.config.MinNameLength && !strings.ContainsAny(value, ",/") {
		return true
	}
	if _, ok := p.placeholders[value]; ok {
		return true
	}
	return dashRun.MatchString(value)
}

func (p *Parser) parsePlaceholder(_ string, res *Result) {
	res.Mentions = append(res.Mentions, p.sentinelMention())
}

func (p *Parser) parseSingle(field string, res *Result) {
	p.appendNames(res, models.RolePrimary, []string{field})
}

// parseLeadMarker splits on the last marker. Everything before it leads;
// everything after it participates.
func (p *Parser) parseLeadMarker(field string, res *Result) {
	locs := leadMarker.FindAllStringIndex(field, -1)
	last := locs[len(locs)-1]

	leads := leadMarker.ReplaceAllString(field[:last[0]], "")
	leads = strings.TrimRight(strings.TrimSpace(leads), "/, ")
	rest := strings.TrimLeft(strings.TrimSpace(field[last[1]:]), "/, ")

	p.appendNames(res, models.RolePrimary, strings.Split(leads, ","))
	p.appendNames(res, models.RoleSecondary, strings.Split(leadMarker.ReplaceAllString(rest, ""), ","))
}

func (p *Parser) parseSlash(field string, res *Result) {
	leads, rest, _ := strings.Cut(field, "/")
	p.appendNames(res, models.RolePrimary, strings.Split(leads, ","))
	p.appendNames(res, models.RoleSecondary, strings.Split(rest, ","))
}

// parseCommaList applies the co-lead policy: short lists lead jointly, long
// lists are demoted behind a synthetic sentinel lead.
func (p *Parser) parseCommaList(field string, res *Result) {
	names := p.validNames(res, strings.Split(field, ","))
	if len(names) <= p.config.CoLeadCutoff {
		res.Rule = RuleCoLead
		p.appendValid(res, models.RolePrimary, names)
		return
	}
	res.Rule = RuleSyndicate
	sentinel := p.sentinelMention()
	sentinel.Synthetic = true
	res.Mentions = append(res.Mentions, sentinel)
	p.appendValid(res, models.RoleSecondary, names)
}

func (p *Parser) sentinelMention() models.PartyMention {
	return models.PartyMention{Name: p.config.Sentinel, Role: models.RolePrimary}
}

func (p *Parser) appendNames(res *Result, role models.Role, raw []string) {
	p.appendValid(res, role, p.validNames(res, raw))
}

// appendValid numbers names per role group, continuing after mentions of the
// same role already on the result
func (p *Parser) appendValid(res *Result, role models.Role, names []string) {
	ordinal := 0
	for _, m := range res.Mentions {
		if m.Role == role {
			ordinal++
		}
	}
	for _, name := range names {
		res.Mentions = append(res.Mentions, models.PartyMention{Name: name, Role: role, Ordinal: ordinal})
		ordinal++
	}
}

// validNames cleans each split name and drops, with a warning, the ones that
// are blank or carry fewer letters and digits than the minimum length
func (p *Parser) validNames(res *Result, raw []string) []string {
	names := make([]string, 0, len(raw))
	for i, part := range raw {
		name := normalize.Clean(part)
		switch {
		case name == "" && strings.TrimSpace(part) == "" && len(raw) == 1:
			// splitting an empty side yields a single blank piece
		case name == "":
			res.Warnings = append(res.Warnings, errors.MalformedFieldError("parties", part,
				"empty entry in party list").WithContext("position", i))
		case len(normalize.Alnum(name)) < p.config.MinNameLength:
			res.Warnings = append(res.Warnings, errors.MalformedFieldError("parties", part,
				"name shorter than minimum length"))
		default:
			names = append(names, name)
		}
	}
	return names
}

func hasNoSeparators(field string) bool {
	return !strings.ContainsAny(field, ",/") && !leadMarker.MatchString(field)
}

func hasSlash(field string) bool {
	return strings.Contains(field, "/")
}

func always(string) bool {
	return true
}

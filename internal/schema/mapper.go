package schema

import (
	"fmt"
	"strings"
	"time"

	"notion-content-sync/internal/notion"
)

// CheckStatus classifies one field evaluation outcome.
type CheckStatus string

const (
	CheckOK              CheckStatus = "ok"
	CheckMissingRequired CheckStatus = "missing_required"
	CheckMissingOptional CheckStatus = "missing_optional"
	CheckTypeMismatch    CheckStatus = "type_mismatch"
)

// Check is the evaluation result for a single expectation. Derived, never
// persisted.
type Check struct {
	AppField            string      `json:"appField"`
	NotionField         string      `json:"notionField"`
	SelectedNotionField string      `json:"selectedNotionField"`
	MatchedName         string      `json:"matchedName,omitempty"`
	ExpectedType        FieldType   `json:"expectedType"`
	ActualType          string      `json:"actualType,omitempty"`
	Required            bool        `json:"required"`
	MappedExplicitly    bool        `json:"mappedExplicitly"`
	Status              CheckStatus `json:"status"`
	Message             string      `json:"message"`
}

// Report aggregates all field checks for one content model.
type Report struct {
	Checks          []Check `json:"checks"`
	RequiredMissing int     `json:"requiredMissingCount"`
	Mismatches      int     `json:"mismatchCount"`
	OK              bool    `json:"ok"`
}

// Evaluate compares a live property list against the descriptor and the
// explicit mapping overrides. Pure; schema drift is an expected condition,
// so drift surfaces as statuses and messages, never as an error.
func Evaluate(expectations []FieldExpectation, builtins []BuiltinCheck, liveProps []notion.DataSourceProperty, mapping FieldMapping) Report {
	byName := make(map[string]notion.DataSourceProperty, len(liveProps))
	for _, p := range liveProps {
		byName[p.Name] = p
	}

	report := Report{Checks: make([]Check, 0, len(expectations)+len(builtins))}
	for _, exp := range expectations {
		check := Check{
			AppField:     exp.AppField,
			NotionField:  exp.NotionField,
			ExpectedType: exp.Type,
			Required:     exp.Required,
		}

		selected := exp.NotionField
		if target, ok := mapping[exp.AppField]; ok && target != "" {
			selected = target
			check.MappedExplicitly = true
		}
		check.SelectedNotionField = selected

		live, found := byName[selected]
		switch {
		case found:
			check.MatchedName = live.Name
			check.ActualType = live.Type
			if exp.Type.Compatible(live.Type) {
				check.Status = CheckOK
				check.Message = fmt.Sprintf("%q matches expected type %s", live.Name, exp.Type)
			} else {
				check.Status = CheckTypeMismatch
				check.Message = fmt.Sprintf("%q has type %s, expected %s", live.Name, live.Type, exp.Type)
				report.Mismatches++
			}
		case check.MappedExplicitly:
			check.Status = missingStatus(exp.Required)
			check.Message = fmt.Sprintf("explicitly mapped to %q, which does not exist in the data source", selected)
		default:
			check.Status = missingStatus(exp.Required)
			check.Message = fmt.Sprintf("property %q not found", selected)
			if hint := NearMatch(selected, liveProps); hint != nil {
				check.Message += fmt.Sprintf("; a property named %q exists with different casing", *hint)
			}
		}
		if check.Status == CheckMissingRequired {
			report.RequiredMissing++
		}
		report.Checks = append(report.Checks, check)
	}

	for _, b := range builtins {
		report.Checks = append(report.Checks, Check{
			AppField:            b.AppField,
			NotionField:         b.NotionField,
			SelectedNotionField: b.NotionField,
			ExpectedType:        TypeBuiltin,
			Status:              CheckOK,
			Message:             b.Message,
		})
	}

	report.OK = report.RequiredMissing == 0 && report.Mismatches == 0
	return report
}

func missingStatus(required bool) CheckStatus {
	if required {
		return CheckMissingRequired
	}
	return CheckMissingOptional
}

// NearMatch looks for a live property whose name differs only by case.
// Diagnostic only: the authoritative lookup stays exact-match, a near match
// never counts as found.
func NearMatch(name string, liveProps []notion.DataSourceProperty) *string {
	for _, p := range liveProps {
		if p.Name != name && strings.EqualFold(p.Name, name) {
			hit := p.Name
			return &hit
		}
	}
	return nil
}

// DateSpan is the decoded value of a date property.
type DateSpan struct {
	Start *string `json:"start"`
	End   *string `json:"end"`
}

// IconValue is the decoded page icon. Exactly one of the fields is set.
type IconValue struct {
	Emoji *string `json:"emoji"`
	URL   *string `json:"url"`
}

// MapPageFields extracts the flat appField -> value mapping out of a live
// page. Best effort: unknown properties and malformed payloads decode to
// nil, never panic or error.
func MapPageFields(expectations []FieldExpectation, builtins []BuiltinCheck, mapping FieldMapping, page *notion.Page) map[string]any {
	fields := make(map[string]any, len(expectations)+len(builtins))
	if page == nil {
		page = &notion.Page{}
	}

	for _, exp := range expectations {
		selected := exp.NotionField
		if target, ok := mapping[exp.AppField]; ok && target != "" {
			selected = target
		}
		pv, ok := page.Properties[selected]
		if !ok {
			fields[exp.AppField] = emptyValue(exp.Type)
			continue
		}
		fields[exp.AppField] = decodeProperty(exp.Type, pv)
	}

	for _, b := range builtins {
		fields[b.AppField] = decodeBuiltin(b.NotionField, page)
	}
	return fields
}

// emptyValue preserves shape guarantees for absent properties: multi-select
// is always a slice, everything else nil.
func emptyValue(t FieldType) any {
	if t == TypeMultiSelect {
		return []string{}
	}
	return nil
}

func decodeProperty(t FieldType, pv notion.PropertyValue) any {
	switch t {
	case TypeTitle:
		return textOrNil(pv.Title)
	case TypeRichText:
		return textOrNil(pv.RichText)
	case TypeSelect:
		return optionName(pv.Select)
	case TypeStatus:
		return optionName(pv.Status)
	case TypeMultiSelect:
		names := make([]string, 0, len(pv.MultiSelect))
		for _, opt := range pv.MultiSelect {
			names = append(names, opt.Name)
		}
		return names
	case TypeNumber:
		if pv.Number == nil {
			return nil
		}
		return *pv.Number
	case TypeCheckbox:
		if pv.Checkbox == nil {
			return nil
		}
		return *pv.Checkbox
	case TypeDate:
		if pv.Date == nil {
			return nil
		}
		span := DateSpan{End: pv.Date.End}
		if pv.Date.Start != "" {
			start := pv.Date.Start
			span.Start = &start
		}
		return span
	case TypeURL:
		return stringOrNil(pv.URL)
	case TypeEmail:
		return stringOrNil(pv.Email)
	case TypePhoneNumber:
		return stringOrNil(pv.PhoneNumber)
	case TypeFile:
		urls := make([]string, 0, len(pv.Files))
		for _, f := range pv.Files {
			if u := fileURL(&f); u != nil {
				urls = append(urls, *u)
			}
		}
		return urls
	default:
		return nil
	}
}

func decodeBuiltin(attr string, page *notion.Page) any {
	switch attr {
	case BuiltinIcon:
		return decodeIcon(page.Icon)
	case BuiltinCover:
		if u := fileURL(page.Cover); u != nil {
			return *u
		}
		return nil
	case BuiltinCreatedTime:
		return normalizeTimestamp(page.CreatedTime)
	case BuiltinLastEditedTime:
		return normalizeTimestamp(page.LastEditedTime)
	default:
		return nil
	}
}

func decodeIcon(icon *notion.Icon) any {
	if icon == nil {
		return nil
	}
	out := IconValue{}
	switch icon.Type {
	case "emoji":
		out.Emoji = icon.Emoji
	case "external":
		if icon.External != nil {
			out.URL = &icon.External.URL
		}
	case "file":
		if icon.File != nil {
			out.URL = &icon.File.URL
		}
	case "custom_emoji":
		if icon.CustomEmoji != nil {
			out.URL = &icon.CustomEmoji.URL
		}
	}
	if out.Emoji == nil && out.URL == nil {
		return nil
	}
	return out
}

// fileURL resolves either hosted or external variants of a file reference.
func fileURL(f *notion.FileRef) *string {
	if f == nil {
		return nil
	}
	if f.External != nil && f.External.URL != "" {
		return &f.External.URL
	}
	if f.File != nil && f.File.URL != "" {
		return &f.File.URL
	}
	return nil
}

// normalizeTimestamp re-serializes a provider timestamp as RFC3339 UTC,
// falling back to the raw string when it does not parse.
func normalizeTimestamp(raw string) any {
	if raw == "" {
		return nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return ts.UTC().Format(time.RFC3339)
}

func textOrNil(runs []notion.RichText) any {
	if len(runs) == 0 {
		return nil
	}
	var sb strings.Builder
	for _, r := range runs {
		sb.WriteString(r.PlainText)
	}
	if sb.Len() == 0 {
		return nil
	}
	return sb.String()
}

func optionName(opt *notion.SelectOption) any {
	if opt == nil {
		return nil
	}
	return opt.Name
}

func stringOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notion-content-sync/internal/notion"
)

func strptr(s string) *string { return &s }

func TestEvaluate_AllMatching(t *testing.T) {
	desc := PostDescriptor()
	var live []notion.DataSourceProperty
	for _, exp := range desc.Expectations {
		live = append(live, prop(exp.NotionField, exp.Type.ProviderType()))
	}

	report := Evaluate(desc.Expectations, desc.Builtins, live, nil)

	assert.True(t, report.OK)
	assert.Zero(t, report.RequiredMissing)
	assert.Zero(t, report.Mismatches)
	assert.Len(t, report.Checks, len(desc.Expectations)+len(desc.Builtins))
	for _, c := range report.Checks {
		assert.Equal(t, CheckOK, c.Status, "field %s", c.AppField)
	}
}

func TestEvaluate_MissingSeverityByRequired(t *testing.T) {
	exps := []FieldExpectation{
		{AppField: "post.title", NotionField: "Name", Type: TypeTitle, Required: true},
		{AppField: "post.excerpt", NotionField: "Excerpt", Type: TypeRichText},
	}

	report := Evaluate(exps, nil, nil, nil)

	require.Len(t, report.Checks, 2)
	assert.Equal(t, CheckMissingRequired, report.Checks[0].Status)
	assert.Equal(t, CheckMissingOptional, report.Checks[1].Status)
	assert.Equal(t, 1, report.RequiredMissing)
	assert.False(t, report.OK)
}

func TestEvaluate_DanglingExplicitMapping(t *testing.T) {
	exps := []FieldExpectation{
		{AppField: "post.slug", NotionField: "Slug", Type: TypeRichText, Required: true},
	}
	live := []notion.DataSourceProperty{prop("Slug", "rich_text")}
	mapping := FieldMapping{"post.slug": "URL Slug"}

	report := Evaluate(exps, nil, live, mapping)

	require.Len(t, report.Checks, 1)
	check := report.Checks[0]
	assert.Equal(t, CheckMissingRequired, check.Status)
	assert.True(t, check.MappedExplicitly)
	assert.Equal(t, "URL Slug", check.SelectedNotionField)
	assert.Contains(t, check.Message, "URL Slug")
	assert.False(t, report.OK)
}

func TestEvaluate_NearMatchIsHintOnly(t *testing.T) {
	exps := []FieldExpectation{
		{AppField: "post.tags", NotionField: "Tags", Type: TypeMultiSelect, Required: true},
	}
	live := []notion.DataSourceProperty{prop("tags", "multi_select")}

	report := Evaluate(exps, nil, live, nil)

	require.Len(t, report.Checks, 1)
	check := report.Checks[0]
	assert.Equal(t, CheckMissingRequired, check.Status, "case-insensitive hit must not count as found")
	assert.Contains(t, check.Message, `"tags"`)
	assert.Empty(t, check.MatchedName)
}

func TestEvaluate_TypeMismatch(t *testing.T) {
	exps := []FieldExpectation{
		{AppField: "post.tags", NotionField: "Tags", Type: TypeMultiSelect},
	}
	live := []notion.DataSourceProperty{prop("Tags", "rich_text")}

	report := Evaluate(exps, nil, live, nil)

	require.Len(t, report.Checks, 1)
	assert.Equal(t, CheckTypeMismatch, report.Checks[0].Status)
	assert.Equal(t, "rich_text", report.Checks[0].ActualType)
	assert.Equal(t, 1, report.Mismatches)
	assert.False(t, report.OK)
}

func TestNearMatch(t *testing.T) {
	live := []notion.DataSourceProperty{prop("tags", "multi_select"), prop("Name", "title")}

	hint := NearMatch("Tags", live)
	require.NotNil(t, hint)
	assert.Equal(t, "tags", *hint)

	assert.Nil(t, NearMatch("Name", live), "exact name is not a near match")
	assert.Nil(t, NearMatch("Missing", live))
}

func TestMapPageFields_DecodesAllTypes(t *testing.T) {
	desc := PostDescriptor()
	end := "2024-03-02"
	page := &notion.Page{
		ID:             "page-1",
		CreatedTime:    "2024-01-15T08:30:00.000Z",
		LastEditedTime: "2024-02-01T10:00:00.000Z",
		Icon:           &notion.Icon{Type: "emoji", Emoji: strptr("🚀")},
		Cover: &notion.FileRef{
			Type:     "external",
			External: &notion.ExternalFile{URL: "https://img.example/cover.png"},
		},
		Properties: map[string]notion.PropertyValue{
			"Name": {Type: "title", Title: []notion.RichText{
				{PlainText: "Hello "}, {PlainText: "World"},
			}},
			"Slug":         {Type: "rich_text", RichText: []notion.RichText{{PlainText: "hello-world"}}},
			"Excerpt":      {Type: "rich_text"},
			"Tags":         {Type: "multi_select", MultiSelect: []notion.SelectOption{{Name: "go"}, {Name: "sync"}}},
			"Status":       {Type: "status", Status: &notion.SelectOption{Name: "Published"}},
			"Published At": {Type: "date", Date: &notion.DateValue{Start: "2024-03-01", End: &end}},
			"Author":       {Type: "select", Select: &notion.SelectOption{Name: "Ada"}},
			"Canonical URL": {
				Type: "url", URL: strptr("https://example.com/hello"),
			},
		},
	}

	fields := MapPageFields(desc.Expectations, desc.Builtins, nil, page)

	assert.Equal(t, "Hello World", fields["post.title"])
	assert.Equal(t, "hello-world", fields["post.slug"])
	assert.Nil(t, fields["post.excerpt"], "empty rich text decodes to nil")
	assert.Equal(t, []string{"go", "sync"}, fields["post.tags"])
	assert.Equal(t, "Published", fields["post.status"])
	assert.Equal(t, "Ada", fields["post.author"])
	assert.Equal(t, "https://example.com/hello", fields["post.canonicalUrl"])

	span, ok := fields["post.publishedAt"].(DateSpan)
	require.True(t, ok)
	require.NotNil(t, span.Start)
	assert.Equal(t, "2024-03-01", *span.Start)
	require.NotNil(t, span.End)
	assert.Equal(t, "2024-03-02", *span.End)

	icon, ok := fields["post.icon"].(IconValue)
	require.True(t, ok)
	require.NotNil(t, icon.Emoji)
	assert.Equal(t, "🚀", *icon.Emoji)
	assert.Nil(t, icon.URL)

	assert.Equal(t, "https://img.example/cover.png", fields["post.cover"])
	assert.Equal(t, "2024-01-15T08:30:00Z", fields["post.createdTime"], "timestamps re-normalize through parse")
	assert.Equal(t, "2024-02-01T10:00:00Z", fields["post.lastEditedTime"])
}

func TestMapPageFields_NullSafety(t *testing.T) {
	desc := PostDescriptor()

	// Empty page: no properties, no builtins.
	fields := MapPageFields(desc.Expectations, desc.Builtins, nil, &notion.Page{})

	assert.Nil(t, fields["post.title"])
	assert.Nil(t, fields["post.slug"])
	assert.Equal(t, []string{}, fields["post.tags"], "missing multi-select decodes to empty slice, not nil")
	assert.Nil(t, fields["post.publishedAt"])
	assert.Nil(t, fields["post.icon"])
	assert.Nil(t, fields["post.cover"])
	assert.Nil(t, fields["post.createdTime"])

	// Nil page must not panic either.
	assert.NotPanics(t, func() {
		MapPageFields(desc.Expectations, desc.Builtins, nil, nil)
	})
}

func TestMapPageFields_WrongShapeDecodesToNil(t *testing.T) {
	exps := []FieldExpectation{
		{AppField: "post.tags", NotionField: "Tags", Type: TypeMultiSelect},
		{AppField: "post.title", NotionField: "Name", Type: TypeTitle},
	}
	// Live payloads carry the wrong variant for both fields.
	page := &notion.Page{Properties: map[string]notion.PropertyValue{
		"Tags": {Type: "rich_text", RichText: []notion.RichText{{PlainText: "not tags"}}},
		"Name": {Type: "number", Number: func() *float64 { v := 3.0; return &v }()},
	}}

	fields := MapPageFields(exps, nil, nil, page)

	assert.Equal(t, []string{}, fields["post.tags"])
	assert.Nil(t, fields["post.title"])
}

func TestMapPageFields_ExplicitMappingSelectsProperty(t *testing.T) {
	exps := []FieldExpectation{
		{AppField: "post.slug", NotionField: "Slug", Type: TypeRichText},
	}
	page := &notion.Page{Properties: map[string]notion.PropertyValue{
		"URL Slug": {Type: "rich_text", RichText: []notion.RichText{{PlainText: "from-override"}}},
		"Slug":     {Type: "rich_text", RichText: []notion.RichText{{PlainText: "from-default"}}},
	}}

	fields := MapPageFields(exps, nil, FieldMapping{"post.slug": "URL Slug"}, page)
	assert.Equal(t, "from-override", fields["post.slug"])
}

func TestDecodeBuiltin_IconVariants(t *testing.T) {
	cases := []struct {
		name string
		icon *notion.Icon
		want any
	}{
		{"absent", nil, nil},
		{"emoji", &notion.Icon{Type: "emoji", Emoji: strptr("📝")}, IconValue{Emoji: strptr("📝")}},
		{"external", &notion.Icon{Type: "external", External: &notion.ExternalFile{URL: "https://e/i.png"}},
			IconValue{URL: strptr("https://e/i.png")}},
		{"file", &notion.Icon{Type: "file", File: &notion.HostedFile{URL: "https://f/i.png"}},
			IconValue{URL: strptr("https://f/i.png")}},
		{"custom_emoji", &notion.Icon{Type: "custom_emoji", CustomEmoji: &notion.CustomEmoji{Name: "party", URL: "https://c/p.png"}},
			IconValue{URL: strptr("https://c/p.png")}},
		{"malformed", &notion.Icon{Type: "emoji"}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := decodeIcon(tc.icon)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeTimestamp_FallsBackToRaw(t *testing.T) {
	assert.Equal(t, "not-a-time", normalizeTimestamp("not-a-time"))
	assert.Nil(t, normalizeTimestamp(""))
	assert.Equal(t, "2024-06-01T12:00:00Z", normalizeTimestamp("2024-06-01T14:00:00+02:00"))
}

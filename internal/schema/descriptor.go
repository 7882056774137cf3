package schema

// FieldType is an application-side expected property type.
type FieldType string

// Expected types, mirroring Notion property types plus the builtin marker
// for fields sourced from page metadata rather than custom properties.
const (
	TypeTitle       FieldType = "title"
	TypeRichText    FieldType = "rich_text"
	TypeSelect      FieldType = "select"
	TypeMultiSelect FieldType = "multi_select"
	TypeStatus      FieldType = "status"
	TypeNumber      FieldType = "number"
	TypeDate        FieldType = "date"
	TypeCheckbox    FieldType = "checkbox"
	TypeURL         FieldType = "url"
	TypeEmail       FieldType = "email"
	TypePhoneNumber FieldType = "phone_number"
	TypeFile        FieldType = "file"
	TypeBuiltin     FieldType = "builtin"
)

// ProviderType returns the live schema type name a field type creates as.
// The only divergence is file, which Notion stores as "files".
func (t FieldType) ProviderType() string {
	if t == TypeFile {
		return "files"
	}
	return string(t)
}

// Compatible reports whether a live property type satisfies the expected
// type. file/files is the single cross-type compatibility rule.
func (t FieldType) Compatible(liveType string) bool {
	return string(t) == liveType || t.ProviderType() == liveType
}

// FieldExpectation declares one field the application expects to find in
// the database schema.
type FieldExpectation struct {
	AppField    string    `json:"appField"`
	NotionField string    `json:"notionField"`
	Type        FieldType `json:"expectedType"`
	Required    bool      `json:"required"`
	Description string    `json:"description,omitempty"`
}

// BuiltinCheck declares a field sourced from page-level metadata
// (page.icon, page.cover, page.created_time, page.last_edited_time).
// It is satisfied whenever the attribute exists structurally.
type BuiltinCheck struct {
	AppField    string `json:"appField"`
	NotionField string `json:"notionField"`
	Message     string `json:"message"`
}

// FieldMapping is the operator-configured override document: appField to a
// chosen live property name, taking precedence over the descriptor default.
type FieldMapping map[string]string

// Descriptor bundles the static expectations for one content model.
type Descriptor struct {
	Model        string
	Expectations []FieldExpectation
	Builtins     []BuiltinCheck
}

// Builtin page attribute names.
const (
	BuiltinIcon           = "page.icon"
	BuiltinCover          = "page.cover"
	BuiltinCreatedTime    = "page.created_time"
	BuiltinLastEditedTime = "page.last_edited_time"
)

// PostDescriptor declares the blog-post content model.
func PostDescriptor() Descriptor {
	return Descriptor{
		Model: "post",
		Expectations: []FieldExpectation{
			{AppField: "post.title", NotionField: "Name", Type: TypeTitle, Required: true, Description: "Post title, the database title property."},
			{AppField: "post.slug", NotionField: "Slug", Type: TypeRichText, Required: true, Description: "URL slug, unique per post."},
			{AppField: "post.excerpt", NotionField: "Excerpt", Type: TypeRichText, Description: "Short summary shown in listings."},
			{AppField: "post.tags", NotionField: "Tags", Type: TypeMultiSelect, Description: "Free-form topic tags."},
			{AppField: "post.status", NotionField: "Status", Type: TypeStatus, Required: true, Description: "Editorial status; the published option gates visibility."},
			{AppField: "post.publishedAt", NotionField: "Published At", Type: TypeDate, Description: "Publication date; empty falls back to page creation time."},
			{AppField: "post.author", NotionField: "Author", Type: TypeSelect, Description: "Author display name."},
			{AppField: "post.canonicalUrl", NotionField: "Canonical URL", Type: TypeURL, Description: "Canonical URL when the post first appeared elsewhere."},
		},
		Builtins: []BuiltinCheck{
			{AppField: "post.icon", NotionField: BuiltinIcon, Message: "Page icon is optional; emoji or image are both accepted."},
			{AppField: "post.cover", NotionField: BuiltinCover, Message: "Page cover is optional and mirrored when media storage is configured."},
			{AppField: "post.createdTime", NotionField: BuiltinCreatedTime, Message: "Creation time always present on pages."},
			{AppField: "post.lastEditedTime", NotionField: BuiltinLastEditedTime, Message: "Last edit time always present on pages."},
		},
	}
}

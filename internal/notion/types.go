package notion

// Property type names as they appear in the Notion API.
const (
	TypeTitle       = "title"
	TypeRichText    = "rich_text"
	TypeSelect      = "select"
	TypeMultiSelect = "multi_select"
	TypeStatus      = "status"
	TypeNumber      = "number"
	TypeDate        = "date"
	TypeCheckbox    = "checkbox"
	TypeURL         = "url"
	TypeEmail       = "email"
	TypePhoneNumber = "phone_number"
	TypeFiles       = "files"
)

// DataSourceProperty is a {name, type} snapshot of one live database
// property. Used only for comparison, never mutated.
type DataSourceProperty struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// RichText is one text run inside a title or rich_text value.
type RichText struct {
	PlainText string `json:"plain_text"`
	Href      *string `json:"href,omitempty"`
}

// SelectOption is a select/multi_select/status option.
type SelectOption struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// DateValue carries the start/end of a date property; end is only set for
// ranges.
type DateValue struct {
	Start string  `json:"start"`
	End   *string `json:"end,omitempty"`
}

// HostedFile is a Notion-hosted file with an expiring URL.
type HostedFile struct {
	URL        string `json:"url"`
	ExpiryTime string `json:"expiry_time,omitempty"`
}

// ExternalFile is a file referenced by an external URL.
type ExternalFile struct {
	URL string `json:"url"`
}

// FileRef is one entry of a files property, or a page cover.
type FileRef struct {
	Name     string        `json:"name,omitempty"`
	Type     string        `json:"type"`
	File     *HostedFile   `json:"file,omitempty"`
	External *ExternalFile `json:"external,omitempty"`
}

// CustomEmoji is a workspace-defined emoji icon.
type CustomEmoji struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Icon is a page icon in any of its payload variants.
type Icon struct {
	Type        string        `json:"type"`
	Emoji       *string       `json:"emoji,omitempty"`
	File        *HostedFile   `json:"file,omitempty"`
	External    *ExternalFile `json:"external,omitempty"`
	CustomEmoji *CustomEmoji  `json:"custom_emoji,omitempty"`
}

// PropertyValue is one page property payload. Exactly one of the typed
// fields is populated, discriminated by Type.
type PropertyValue struct {
	ID          string         `json:"id,omitempty"`
	Type        string         `json:"type"`
	Title       []RichText     `json:"title,omitempty"`
	RichText    []RichText     `json:"rich_text,omitempty"`
	Select      *SelectOption  `json:"select,omitempty"`
	Status      *SelectOption  `json:"status,omitempty"`
	MultiSelect []SelectOption `json:"multi_select,omitempty"`
	Number      *float64       `json:"number,omitempty"`
	Date        *DateValue     `json:"date,omitempty"`
	Checkbox    *bool          `json:"checkbox,omitempty"`
	URL         *string        `json:"url,omitempty"`
	Email       *string        `json:"email,omitempty"`
	PhoneNumber *string        `json:"phone_number,omitempty"`
	Files       []FileRef      `json:"files,omitempty"`
}

// Page is a Notion page with its custom properties and the builtin
// attributes the mapper reads.
type Page struct {
	ID             string                   `json:"id"`
	CreatedTime    string                   `json:"created_time"`
	LastEditedTime string                   `json:"last_edited_time"`
	Archived       bool                     `json:"archived"`
	Icon           *Icon                    `json:"icon,omitempty"`
	Cover          *FileRef                 `json:"cover,omitempty"`
	Properties     map[string]PropertyValue `json:"properties"`
	URL            string                   `json:"url,omitempty"`
}

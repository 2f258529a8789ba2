package types

// PayloadData is the app-level metadata of an inbound notification.
type PayloadData struct {
	App            string            `json:"app"`
	SID            string            `json:"sid"`
	URL            string            `json:"url"`
	Acta           string            `json:"acta"`
	Aimg           string            `json:"aimg"`
	Amsg           string            `json:"amsg"`
	Asub           string            `json:"asub"`
	Icon           string            `json:"icon"`
	AdditionalMeta map[string]string `json:"additionalMeta,omitempty"`
}

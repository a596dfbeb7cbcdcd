package markup

// Selectors names the page regions the crawler reads
type Selectors struct {
	CollectionTitle    string `yaml:"collection_title"`
	CollectionModified string `yaml:"collection_modified"`
	DatasetDescription string `yaml:"dataset_description"`
	DatasetContent     string `yaml:"dataset_content"`
}

// DefaultSelectors match the CRCNS page templates
func DefaultSelectors() Selectors {
	return Selectors{
		CollectionTitle:    "h1#parent-fieldname-title",
		CollectionModified: "span.documentModified",
		DatasetDescription: "div.documentDescription",
		DatasetContent:     "div#content",
	}
}

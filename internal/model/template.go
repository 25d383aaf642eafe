package model

// ItemFormat holds the per-item line layouts of a template. Supported
// placeholders are {quantity}, {name}, {notes} and {price}.
type ItemFormat struct {
	Product string `yaml:"product" json:"product"`
	Notes   string `yaml:"notes" json:"notes"`
	Price   string `yaml:"price" json:"price"`
}

// Template is a named ticket layout.
type Template struct {
	Name        string     `yaml:"name" json:"name"`
	Title       string     `yaml:"title" json:"title"`
	Description string     `yaml:"description" json:"description"`
	Header      []string   `yaml:"header" json:"header"`
	Footer      []string   `yaml:"footer" json:"footer"`
	ItemFormat  ItemFormat `yaml:"item_format" json:"item_format"`
}

// RenderedTicket is the output of the renderer: three ordered line groups.
type RenderedTicket struct {
	JobID    string   `json:"job_id"`
	Template string   `json:"template"`
	Header   []string `json:"header"`
	Body     []string `json:"body"`
	Footer   []string `json:"footer"`
}

package loam

// WorkflowMetadata is the on-disk shape of a workflow document.
// Nodes and connections stay loosely typed so both JSON documents and YAML
// front matter decode into it; they are converted through JSON afterwards.
type WorkflowMetadata struct {
	ID          string `json:"id" mapstructure:"id"`
	Name        string `json:"name" mapstructure:"name"`
	Description string `json:"description,omitempty" mapstructure:"description"`
	Version     string `json:"version,omitempty" mapstructure:"version"`
	Nodes       []any  `json:"nodes" mapstructure:"nodes"`
	Connections []any  `json:"connections" mapstructure:"connections"`
}

package base

// BaseTool provides the name, description and display text of a tool
type BaseTool struct {
	ToolName    string
	ToolDesc    string
	ToolDisplay string
}

// Name returns the tool name
func (b *BaseTool) Name() string {
	return b.ToolName
}

// Description returns the tool description
func (b *BaseTool) Description() string {
	return b.ToolDesc
}

// DisplayText returns the status label, falling back to the name
func (b *BaseTool) DisplayText() string {
	if b.ToolDisplay != "" {
		return b.ToolDisplay
	}
	return b.ToolName
}

package prompt

import "github.com/banterworks/banter/internal/providers"

// ImageGenerationToolName is the single capability exposed to the model.
const ImageGenerationToolName = "image_generation"

var imageGenerationTool = providers.ToolDefinition{
	Type: "function",
	Function: providers.ToolFunctionSchema{
		Name:        ImageGenerationToolName,
		Description: "Generate an image from a text description and attach it to the reply.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"prompt": map[string]any{
					"type":        "string",
					"description": "Text description of the image to generate.",
				},
			},
			"required": []string{"prompt"},
		},
	},
}

package ollama

import (
	"encoding/base64"

	"github.com/taxbridge/taxprep/internal/core/extraction"
)

func buildExtractionRequest(model string, image []byte) map[string]any {
	return map[string]any{
		"model":  model,
		"prompt": extraction.Prompt,
		"images": []string{base64.StdEncoding.EncodeToString(image)},
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"temperature": 0.1,
		},
	}
}

package gateway

// normalizeOpenAIPath ensures paths are in /v1/... format for OpenAI API.
// Handles clients configured with a base URL that already ends in /v1.
func normalizeOpenAIPath(path string) string {
	needsV1Prefix := []string{"/chat/completions"}
	for _, p := range needsV1Prefix {
		if path == p {
			return "/v1" + path
		}
	}
	return path
}

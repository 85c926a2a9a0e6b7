package vision

import "embed"

// Prompt text lives as opaque files; the client never interprets
// their contents beyond passing them through.
//
//go:embed prompts/*.txt
var promptFS embed.FS

func loadPrompt(name string) (string, error) {
	b, err := promptFS.ReadFile("prompts/" + name + ".txt")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

package vault

import "strings"

// Chunking defaults for note ingestion.
const (
	DefaultChunkSize    = 512
	DefaultChunkOverlap = 50
)

// Chunk splits text into windows of at most chunkSize tokens, advancing by
// (chunkSize - overlap) tokens so neighbouring chunks share overlap tokens at
// their boundary. A token is a whitespace-separated word (strings.Fields).
//
// Rules:
//   - Empty or whitespace-only input returns nil.
//   - Text of chunkSize tokens or fewer returns a single chunk.
//   - overlap must be < chunkSize; larger values are clamped to chunkSize-1.
func Chunk(text string, chunkSize, overlap int) []string {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}

	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}

	if len(tokens) <= chunkSize {
		return []string{strings.Join(tokens, " ")}
	}

	stride := chunkSize - overlap
	var chunks []string
	for start := 0; start < len(tokens); start += stride {
		end := start + chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, strings.Join(tokens[start:end], " "))
		if end == len(tokens) {
			break
		}
	}
	return chunks
}

// noteTitle derives a display title for a note: the first markdown heading if
// one exists, otherwise the file name without its extension.
func noteTitle(relPath, content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		}
	}
	base := relPath
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	return strings.TrimSuffix(base, ".md")
}

package task

import "strings"

// Kind names one of the operation categories a task can be classified into.
type Kind string

const (
	KindFileOperation      Kind = "file_operation"
	KindLLMOperation       Kind = "llm_operation"
	KindDatabaseOperation  Kind = "database_operation"
	KindEmbeddingOperation Kind = "embedding_operation"
	KindAPIFetch           Kind = "api_fetch"
	KindGitOperation       Kind = "git_operation"
	KindDatabaseQuery      Kind = "database_query"
	KindWebScraping        Kind = "web_scraping"
	KindImageProcessing    Kind = "image_processing"
	KindAudioTranscription Kind = "audio_transcription"
	KindMarkdownConversion Kind = "markdown_conversion"
	KindCodeFormatting     Kind = "code_formatting"
)

var kinds = []Kind{
	KindFileOperation,
	KindLLMOperation,
	KindDatabaseOperation,
	KindEmbeddingOperation,
	KindAPIFetch,
	KindGitOperation,
	KindDatabaseQuery,
	KindWebScraping,
	KindImageProcessing,
	KindAudioTranscription,
	KindMarkdownConversion,
	KindCodeFormatting,
}

// Kinds returns every supported kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// ParseKind normalizes a classifier-supplied type name. Case is folded and
// '-' or spaces become '_', so "File-Operation" parses as file_operation.
// Unknown names are returned as-is; whether they resolve is the registry's call.
func ParseKind(s string) Kind {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	return Kind(s)
}

// Known reports whether k is a member of the closed kind set.
func (k Kind) Known() bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string { return string(k) }

// InPlace reports whether handlers of k rewrite their input instead of
// writing a separate output.
func (k Kind) InPlace() bool { return k == KindCodeFormatting }

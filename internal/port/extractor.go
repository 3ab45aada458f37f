package port

// TextExtractor turns uploaded file bytes into plain text. PDF/DOCX parsing
// lives behind this boundary; the pipeline treats it as a black box.
type TextExtractor interface {
	Extract(data []byte, filename string) (string, error)
}

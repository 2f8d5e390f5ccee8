package handlers

// Client-facing validation messages. These are response payloads, not Go
// error values, so they read as sentences.
const (
	msgUnsupportedFile = "Only .xlsx and .xls files are supported"
	msgFileTooLarge    = "File exceeds the 10MB upload limit"
)

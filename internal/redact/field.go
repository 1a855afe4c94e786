package redact

import "go.uber.org/zap"

var defaultRedactor = New()

// Field builds a zap.String field whose value has been classified by key
// name and redacted accordingly, so call sites can log scan/process data
// the same way they'd call zap.String without hand-rolling masking at
// every call site.
func Field(key, value string) zap.Field {
	result := defaultRedactor.Redact(value, GuessFieldClass(key))
	return zap.String(key, result.Output)
}

// Message redacts a free-text log message before it's attached to a
// zap.Field, mirroring how structured field values are handled.
func Message(value string) string {
	return defaultRedactor.Redact(value, FreeText).Output
}

package constants

// DummyAPIKey is used as a placeholder when connecting to OpenAI-compatible services
// that don't require authentication. Many services expect a token in the request
// header but don't validate it.
const DummyAPIKey = "not-needed"

// AuthCookieName is the session cookie set after a successful passcode check.
const AuthCookieName = "pdf-ai-auth"

// MaxUploadSize is the largest accepted PDF upload, in bytes.
const MaxUploadSize = 16 << 20

// PDFContentType is the only accepted upload content type.
const PDFContentType = "application/pdf"

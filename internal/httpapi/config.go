package httpapi

// maxBodyBytes controls the maximum allowed request body size for JSON
// endpoints. Default is 1 MiB.
var maxBodyBytes int64 = 1 << 20

// SetMaxBodyBytes allows configuring the maximum JSON request body size.
func SetMaxBodyBytes(n int64) {
	if n <= 0 {
		maxBodyBytes = 1 << 20
		return
	}
	maxBodyBytes = n
}

// maxAudioBytes bounds audio uploads (transcribe, reply). WAV is
// uncompressed, so the ceiling is far above the JSON one. Default 32 MiB,
// about 17 minutes of 16 kHz mono.
var maxAudioBytes int64 = 32 << 20

// SetMaxAudioBytes allows configuring the maximum audio upload size.
func SetMaxAudioBytes(n int64) {
	if n <= 0 {
		maxAudioBytes = 32 << 20
		return
	}
	maxAudioBytes = n
}

// CORS configuration (opt-in). If disabled, no CORS middleware is added.
var (
	corsEnabled        bool
	corsAllowedOrigins []string
	corsAllowedMethods []string
	corsAllowedHeaders []string
)

// SetCORSOptions configures CORS behavior for the HTTP server.
func SetCORSOptions(enabled bool, origins, methods, headers []string) {
	corsEnabled = enabled
	corsAllowedOrigins = append([]string(nil), origins...)
	corsAllowedMethods = append([]string(nil), methods...)
	corsAllowedHeaders = append([]string(nil), headers...)
}

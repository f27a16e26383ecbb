package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           voiced API
// @version         1.0
// @description     HTTP API for local speech-to-speech model serving: logical model management, text generation, transcription and synthesis.
//
// @contact.name   voiced maintainers
// @contact.url    https://github.com/your-org/voiced
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http

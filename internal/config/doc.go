// Package config loads docsearch settings from YAML, .env and the environment.
//
// Lookup order for the file is ./docsearch.yaml, then
// ~/.config/docsearch/config.yaml. Fields left unset take built-in defaults,
// and a handful of environment variables (DOCSEARCH_DB_PATH, REDIS_URL,
// GEMINI_API_KEY, OPENAI_API_KEY, DOCSEARCH_EMBEDDING_PROVIDER,
// DOCSEARCH_LOG_LEVEL) override whatever the file says.
package config

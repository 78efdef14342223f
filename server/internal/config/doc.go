// Package config loads the server configuration from config.yaml.
//
// Sections:
//   - server      http_port (default 8080), cors_origin (default "*"),
//     log_level (default info), revision_env (default GIT_REVISION)
//   - gitlab      url, token_env, default_project, project_ids, timeout;
//     the gitlab scope is only registered when url is set
//   - prometheus  sources: name, endpoint, timeout, auth, tls
//   - static      variables: name, options[label, value]
//
// Secrets never live in the file: *_env fields name environment variables.
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, onChange) reloads the file on change and keeps the previous
// configuration when the new one does not load.
package config

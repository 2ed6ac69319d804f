// Package secret resolves credentials referenced from worker configuration.
//
// Configuration files are expanded strictly (see ExpandEnvStrict), so a missing
// ${VAR} is an error instead of an empty string. Values such as display URLs
// can also name a secret indirectly:
//
//	secretref:env:NTFY_URL
//	secretref:file:/run/secrets/ntfy_url
//
// A reference may appear inline, e.g. "Bearer secretref:env:API_TOKEN".
package secret

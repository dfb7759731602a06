// Package config provides configuration loading, merging, and path management for dispatch.
//
// # Configuration Loading
//
// Load merges configuration from several sources, later sources overriding
// earlier ones:
//
//  1. Global config ($XDG_CONFIG_HOME/dispatch/dispatch.json[c])
//  2. Project config (dispatch.json[c] and .dispatch/dispatch.json[c])
//  3. DISPATCH_CONFIG file
//  4. DISPATCH_CONFIG_CONTENT inline JSON
//  5. Environment variables (DISPATCH_LOG_LEVEL, DISPATCH_MODEL,
//     DISPATCH_AUTO_APPROVE, ANTHROPIC_API_KEY, OPENAI_API_KEY)
//
// A .env file in the project directory is loaded before anything else.
//
// # Supported Formats
//
// Both JSON and JSONC are accepted; comments are stripped with tidwall/jsonc.
//
// # Variable Interpolation
//
// String values may reference the environment or other files:
//
//	{
//	  "provider": {
//	    "anthropic": {"apiKey": "{env:MY_ANTHROPIC_KEY}"},
//	    "openai": {"apiKey": "{file:~/.secrets/openai}"}
//	  }
//	}
//
// Relative {file:...} paths resolve against the directory of the config file
// that references them.
//
// # Merging
//
// Scalars are replaced, maps are merged key by key, and list settings such as
// commandDirs and scope.exclude accumulate across sources.
package config

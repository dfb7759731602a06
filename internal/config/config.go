package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"

	"github.com/CR94168/learn-claude-code-cli/pkg/types"
)

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// Load loads configuration from multiple sources (priority order):
// 1. Global config ($XDG_CONFIG_HOME/dispatch/)
// 2. Project config (dispatch.json[c], .dispatch/dispatch.json[c])
// 3. DISPATCH_CONFIG file
// 4. DISPATCH_CONFIG_CONTENT inline JSON
// 5. Environment variables
//
// A .env file in the project directory is loaded first; variables already
// present in the environment are not overwritten.
func Load(directory string) (*types.Config, error) {
	config := &types.Config{
		Provider: make(map[string]types.ProviderConfig),
	}

	if directory != "" {
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}

	// Track loaded files to avoid duplicates
	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return
		}
		if loaded[absPath] {
			return
		}
		if loadConfigFile(path, config, baseDir) == nil {
			loaded[absPath] = true
		}
	}

	// 1. Global config
	globalPath := GetPaths().Config
	loadOnce(filepath.Join(globalPath, "dispatch.json"), globalPath)
	loadOnce(filepath.Join(globalPath, "dispatch.jsonc"), globalPath)

	// 2. Project config
	if directory != "" {
		projectConfigDir := filepath.Join(directory, ".dispatch")
		loadOnce(filepath.Join(directory, "dispatch.json"), directory)
		loadOnce(filepath.Join(directory, "dispatch.jsonc"), directory)
		loadOnce(filepath.Join(projectConfigDir, "dispatch.json"), projectConfigDir)
		loadOnce(filepath.Join(projectConfigDir, "dispatch.jsonc"), projectConfigDir)
	}

	// 3. DISPATCH_CONFIG file override
	if configPath := os.Getenv("DISPATCH_CONFIG"); configPath != "" {
		loadOnce(configPath, filepath.Dir(configPath))
	}

	// 4. DISPATCH_CONFIG_CONTENT inline JSON
	if configContent := os.Getenv("DISPATCH_CONFIG_CONTENT"); configContent != "" {
		var inlineConfig types.Config
		if err := json.Unmarshal(jsonc.ToJSON([]byte(configContent)), &inlineConfig); err == nil {
			mergeConfig(config, &inlineConfig)
		}
	}

	// 5. Environment variables (highest priority)
	applyEnvOverrides(config)

	normalizeProviderConfig(config)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data, baseDir)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := envPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		if strings.HasPrefix(filePath, "~/") {
			filePath = filepath.Join(os.Getenv("HOME"), filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match // Keep original if file not found
		}

		// Escape for a JSON string; trailing newlines are dropped so key files work as-is
		escaped, _ := json.Marshal(strings.TrimRight(string(content), "\r\n"))
		return string(escaped[1 : len(escaped)-1])
	})

	return []byte(str)
}

// normalizeProviderConfig merges Options fields into direct fields.
func normalizeProviderConfig(config *types.Config) {
	for name, provider := range config.Provider {
		if provider.Options != nil {
			if provider.Options.APIKey != "" {
				provider.APIKey = provider.Options.APIKey
			}
			if provider.Options.BaseURL != "" {
				provider.BaseURL = provider.Options.BaseURL
			}
		}
		config.Provider[name] = provider
	}
}

// mergeConfig merges source config into target.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}

	if len(source.CommandDirs) > 0 {
		target.CommandDirs = append(target.CommandDirs, source.CommandDirs...)
	}

	if source.Scope != nil {
		if target.Scope == nil {
			target.Scope = &types.ScopeConfig{}
		}
		target.Scope.Exclude = append(target.Scope.Exclude, source.Scope.Exclude...)
	}

	if source.Drafter != nil {
		if target.Drafter == nil {
			target.Drafter = &types.DrafterConfig{}
		}
		if source.Drafter.Type != "" {
			target.Drafter.Type = source.Drafter.Type
		}
		if source.Drafter.Model != "" {
			target.Drafter.Model = source.Drafter.Model
		}
		if source.Drafter.MaxTokens != 0 {
			target.Drafter.MaxTokens = source.Drafter.MaxTokens
		}
	}

	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}

	if source.Approval != nil {
		target.Approval = source.Approval
	}
	if source.Server != nil {
		target.Server = source.Server
	}
	if source.Watcher != nil {
		target.Watcher = source.Watcher
	}
	if source.Run != nil {
		target.Run = source.Run
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
	}

	for provider, envVar := range providerEnvMap {
		if apiKey := os.Getenv(envVar); apiKey != "" {
			if config.Provider == nil {
				config.Provider = make(map[string]types.ProviderConfig)
			}
			p := config.Provider[provider]
			if p.APIKey == "" {
				p.APIKey = apiKey
				config.Provider[provider] = p
			}
		}
	}

	if level := os.Getenv("DISPATCH_LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}

	if model := os.Getenv("DISPATCH_MODEL"); model != "" {
		if config.Drafter == nil {
			config.Drafter = &types.DrafterConfig{}
		}
		config.Drafter.Model = model
		config.Drafter.Type = "model"
	}

	if v := os.Getenv("DISPATCH_AUTO_APPROVE"); v != "" {
		if auto, err := strconv.ParseBool(v); err == nil {
			if config.Approval == nil {
				config.Approval = &types.ApprovalConfig{}
			}
			config.Approval.AutoApprove = auto
		}
	}
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// CommandDirs returns the template directories for a workspace in search order.
func CommandDirs(workDir string, config *types.Config) []string {
	dirs := []string{
		filepath.Join(workDir, ".claude", "commands"),
		filepath.Join(workDir, ".dispatch", "commands"),
	}
	if config == nil {
		return dirs
	}
	for _, dir := range config.CommandDirs {
		if strings.HasPrefix(dir, "~/") {
			dir = filepath.Join(os.Getenv("HOME"), dir[2:])
		} else if !filepath.IsAbs(dir) {
			dir = filepath.Join(workDir, dir)
		}
		dirs = append(dirs, dir)
	}
	return dirs
}

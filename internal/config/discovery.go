package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// EnvConfigPath names the environment variable that points at the config.
const EnvConfigPath = "OPENBOOK_CONFIG"

// DiscoverConfigPath finds the config file by checking standard locations.
// Priority order: $OPENBOOK_CONFIG, ~/.config/openbook/config.yaml, ./config.yaml.
func DiscoverConfigPath() (string, error) {
	if p := os.Getenv(EnvConfigPath); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("$%s points at %s, which does not exist", EnvConfigPath, p)
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "openbook", "config.yaml")
		if fileExists(userConfig) {
			return userConfig, nil
		}
	}

	if fileExists("./config.yaml") {
		return "./config.yaml", nil
	}

	return "", fmt.Errorf("no config found (checked: $%s, ~/.config/openbook/config.yaml, ./config.yaml)", EnvConfigPath)
}

// DiscoverAllConfigFiles returns absolute paths to all configuration files in the include tree.
func DiscoverAllConfigFiles(configPath string) ([]string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\nHint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return nil, fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}

	cfg, err := loadConfigFile(absPath)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{absPath: true}
	if len(cfg.Include) > 0 {
		if err := collectIncludes(cfg.Include, filepath.Dir(absPath), visited); err != nil {
			return nil, err
		}
	}

	files := make([]string, 0, len(visited))
	for f := range visited {
		files = append(files, f)
	}
	sort.Strings(files)
	return files, nil
}

func collectIncludes(includes []string, baseDir string, visited map[string]bool) error {
	for i, includePath := range includes {
		includePath = interpolateEnv(includePath)
		resolvedPath := includePath
		if !filepath.IsAbs(includePath) {
			resolvedPath = filepath.Join(baseDir, includePath)
		}

		absPath, err := filepath.Abs(resolvedPath)
		if err != nil {
			return fmt.Errorf("include[%d]: failed to resolve path %q: %w", i, includePath, err)
		}
		if visited[absPath] {
			continue
		}
		if _, err := os.Stat(absPath); err != nil {
			return fmt.Errorf("include[%d]: file not found: %s", i, absPath)
		}
		visited[absPath] = true

		included, err := loadConfigFile(absPath)
		if err != nil {
			return fmt.Errorf("include[%d] (%s): %w", i, includePath, err)
		}
		if err := collectIncludes(included.Include, filepath.Dir(absPath), visited); err != nil {
			return err
		}
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

package utils

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// AppName names the per-user data directory.
const AppName = "PerfectMenuPrintAgent"

// SystemInfo holds information about the current system
type SystemInfo struct {
	OS            string `json:"os"`
	Architecture  string `json:"arch"`
	Hostname      string `json:"hostname"`
	LocalIP       string `json:"localIp,omitempty"`
	AppDataPath   string `json:"appDataPath"`
	ChromePresent bool   `json:"chromePresent"`
	ChromePath    string `json:"chromePath,omitempty"`
}

// DetectSystem returns information about the current operating system and architecture
func DetectSystem(appDataPath string) SystemInfo {
	host, _ := os.Hostname()
	ip, _ := DetectLocalIP()
	present, path := CheckChrome()
	return SystemInfo{
		OS:            runtime.GOOS,
		Architecture:  runtime.GOARCH,
		Hostname:      host,
		LocalIP:       ip,
		AppDataPath:   appDataPath,
		ChromePresent: present,
		ChromePath:    path,
	}
}

// --------------------------------------
// APP DATA
// --------------------------------------

// AppDataPath returns the platform data root for the agent. A non-empty
// override wins.
func AppDataPath(override string) string {
	if override != "" {
		return override
	}
	return appDataPathFor(runtime.GOOS, os.Getenv, os.UserHomeDir)
}

func appDataPathFor(goos string, getenv func(string) string, home func() (string, error)) string {
	fallback := func() string {
		wd, err := os.Getwd()
		if err != nil {
			return "data"
		}
		return filepath.Join(wd, "data")
	}

	switch goos {
	case "windows":
		base := getenv("APPDATA")
		if base == "" {
			base = getenv("LOCALAPPDATA")
		}
		if base == "" {
			return fallback()
		}
		return filepath.Join(base, AppName)

	case "darwin":
		h, err := home()
		if err != nil {
			return fallback()
		}
		return filepath.Join(h, "Library", "Application Support", AppName)

	case "linux":
		if xdg := getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, AppName)
		}
		h, err := home()
		if err != nil {
			return fallback()
		}
		return filepath.Join(h, ".config", AppName)

	default:
		return fallback()
	}
}

// --------------------------------------
// CHROME CHECK
// --------------------------------------

// CheckChrome checks if google-chrome or chromium is installed. Raster
// printing needs it.
func CheckChrome() (bool, string) {
	binaries := []string{
		"google-chrome",
		"google-chrome-stable",
		"chromium",
		"chromium-browser",
	}

	for _, bin := range binaries {
		path, err := exec.LookPath(bin)
		if err == nil {
			return true, path
		}
	}

	for _, path := range getCommonChromePaths() {
		if _, err := os.Stat(path); err == nil {
			return true, path
		}
	}

	return false, ""
}

// getCommonChromePaths returns common Chrome/Chromium installation paths
func getCommonChromePaths() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}

	case "linux":
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}

	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}

	default:
		return []string{}
	}
}

// ChromeVersion attempts to get the version of Chrome/Chromium
func ChromeVersion(path string) string {
	output, err := exec.Command(path, "--version").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(output))
}

package chrome

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// findExecutable locates a Chrome binary when none is configured. Windows and
// macOS have fixed well-known install locations; everywhere else the PATH is
// searched for the usual binary names.
func findExecutable() (string, error) {
	switch runtime.GOOS {
	case "windows":
		programFiles := os.Getenv("ProgramFiles")
		if programFiles == "" {
			programFiles = `C:\Program Files`
		}
		programFilesX86 := os.Getenv("ProgramFiles(x86)")
		if programFilesX86 == "" {
			programFilesX86 = `C:\Program Files (x86)`
		}
		candidates := []string{
			filepath.Join(programFiles, "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(programFilesX86, "Google", "Chrome", "Application", "chrome.exe"),
		}
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			candidates = append(candidates,
				filepath.Join(localAppData, "Google", "Chrome", "Application", "chrome.exe"))
		}
		for _, c := range candidates {
			if fileExists(c) {
				return c, nil
			}
		}

	case "darwin":
		bundle := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if fileExists(bundle) {
			return bundle, nil
		}

	default:
		for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"} {
			if path, err := exec.LookPath(name); err == nil {
				return path, nil
			}
		}
	}

	return "", fmt.Errorf("%w: set binaryPath or install Chrome", ErrExecutableNotFound)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

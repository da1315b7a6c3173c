package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// executablePath is overridden in tests.
var executablePath = os.Executable

// ResolveFFmpeg reports the ffmpeg binary transcodes will execute.
//
// A configured path (anything with a separator) is used as-is. A bare name is
// looked up first beside the kitsupub executable, where packaged builds ship
// a bundled ffmpeg (directly, under ffmpeg/bin, or under the per-OS
// ffmpeg_linux, ffmpeg_osx or ffmpeg_win bin directories), and then on PATH.
func ResolveFFmpeg(configured string) Status {
	result := Status{
		Name:        "FFmpeg",
		Description: "Encodes review previews",
	}

	name := strings.TrimSpace(configured)
	if name == "" {
		name = "ffmpeg"
	}

	if strings.ContainsRune(name, filepath.Separator) {
		result.Command = name
		if info, err := os.Stat(name); err == nil && isExecutable(info) {
			result.Available = true
			return result
		}
		result.Detail = fmt.Sprintf("binary %q not found or not executable", name)
		return result
	}

	if exe, err := executablePath(); err == nil {
		for _, candidate := range bundledCandidates(filepath.Dir(exe), name) {
			if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
				result.Command = candidate
				result.Available = true
				return result
			}
		}
	}

	if resolved, err := exec.LookPath(name); err == nil {
		result.Command = resolved
		result.Available = true
		return result
	}

	result.Command = name
	result.Detail = fmt.Sprintf("binary %q not found", name)
	return result
}

func bundledCandidates(dir, name string) []string {
	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		name += ".exe"
	}
	return []string{
		filepath.Join(dir, name),
		filepath.Join(dir, "ffmpeg", "bin", name),
		filepath.Join(dir, platformBundleDir(runtime.GOOS), "bin", name),
	}
}

// platformBundleDir names the per-OS ffmpeg directory of packaged builds.
func platformBundleDir(goos string) string {
	switch goos {
	case "darwin":
		return "ffmpeg_osx"
	case "windows":
		return "ffmpeg_win"
	default:
		return "ffmpeg_linux"
	}
}

func isExecutable(info os.FileInfo) bool {
	if info == nil {
		return false
	}
	if info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

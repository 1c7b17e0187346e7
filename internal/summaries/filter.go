package summaries

import (
	"path"
	"strings"

	"github.com/angelmondragon/commitscribe-backend/pkg/github"
)

// BulkChangeThreshold is the largest additions+deletions a file may carry and still
// be sent to the model.
const BulkChangeThreshold = 500

var lockFiles = map[string]struct{}{
	"package-lock.json":   {},
	"npm-shrinkwrap.json": {},
	"pnpm-lock.yaml":      {},
	"yarn.lock":           {},
	"bun.lockb":           {},
	"gemfile.lock":        {},
	"cargo.lock":          {},
	"poetry.lock":         {},
	"composer.lock":       {},
	"pipfile.lock":        {},
	"go.sum":              {},
	"mix.lock":            {},
	"podfile.lock":        {},
}

var excludedDirs = map[string]struct{}{
	"node_modules":     {},
	"vendor":           {},
	"bower_components": {},
	"dist":             {},
	"build":            {},
	"out":              {},
	".next":            {},
	".nuxt":            {},
	"target":           {},
	"coverage":         {},
	"__pycache__":      {},
	".venv":            {},
}

var excludedSuffixes = []string{
	".min.js",
	".min.css",
	".map",
	".bundle.js",
	".chunk.js",
}

var binaryExtensions = map[string]struct{}{
	// images
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".bmp": {}, ".ico": {}, ".webp": {}, ".svg": {}, ".tiff": {}, ".psd": {},
	// fonts
	".woff": {}, ".woff2": {}, ".ttf": {}, ".otf": {}, ".eot": {},
	// audio
	".mp3": {}, ".wav": {}, ".ogg": {}, ".flac": {}, ".aac": {}, ".m4a": {},
	// video
	".mp4": {}, ".mov": {}, ".avi": {}, ".mkv": {}, ".webm": {}, ".wmv": {},
	// archives
	".zip": {}, ".tar": {}, ".gz": {}, ".tgz": {}, ".bz2": {}, ".xz": {}, ".7z": {}, ".rar": {}, ".jar": {},
	".pdf": {},
}

// ShouldExclude reports whether a changed file is left out of the prompt. It is pure
// and total; files with unknown extensions are included.
func ShouldExclude(filename string, additions, deletions int) bool {
	name := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(filename, "\\", "/")))
	if name == "" {
		return false
	}
	base := path.Base(name)

	if _, ok := lockFiles[base]; ok {
		return true
	}
	if isExcludedPath(name, base) {
		return true
	}
	if _, ok := binaryExtensions[path.Ext(base)]; ok {
		return true
	}
	return additions+deletions > BulkChangeThreshold
}

func isExcludedPath(name, base string) bool {
	for _, segment := range strings.Split(path.Dir(name), "/") {
		if _, ok := excludedDirs[segment]; ok {
			return true
		}
	}
	for _, suffix := range excludedSuffixes {
		if strings.HasSuffix(base, suffix) {
			return true
		}
	}
	return base == ".env" || strings.HasPrefix(base, ".env.") || strings.HasSuffix(base, ".env")
}

// FilterFiles splits files into those sent to the model and those dropped.
func FilterFiles(files []github.FileDiff) (kept, excluded []github.FileDiff) {
	for _, f := range files {
		if ShouldExclude(f.Filename, f.Additions, f.Deletions) {
			excluded = append(excluded, f)
			continue
		}
		kept = append(kept, f)
	}
	return kept, excluded
}

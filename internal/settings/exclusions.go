package settings

// Built-in index exclusions. These are read-only; user extras layer on
// top through CodebaseIndexConfig.

// BuiltinExcludedDirs are directory names never indexed.
var BuiltinExcludedDirs = []string{
	".git", ".hg", ".svn",
	"node_modules", "vendor", "target", "dist", "build", "out",
	".venv", "venv", "__pycache__", ".mypy_cache", ".pytest_cache",
	".idea", ".vscode", ".cache", "coverage",
}

// BuiltinBinaryExtensions are file extensions (no leading dot) never
// indexed.
var BuiltinBinaryExtensions = []string{
	"png", "jpg", "jpeg", "gif", "webp", "ico", "bmp", "svg",
	"pdf", "zip", "tar", "gz", "bz2", "xz", "7z", "rar",
	"exe", "dll", "so", "dylib", "a", "o", "bin",
	"woff", "woff2", "ttf", "otf", "eot",
	"mp3", "mp4", "avi", "mov", "wav", "flac",
	"db", "sqlite", "sqlite3",
}

// EffectiveExclusions merges the built-ins with user extras.
func EffectiveExclusions(cfg *CodebaseIndexConfig) (dirs []string, extensions []string) {
	dirs = append(dirs, BuiltinExcludedDirs...)
	extensions = append(extensions, BuiltinBinaryExtensions...)
	if cfg == nil {
		return dirs, extensions
	}

	have := map[string]bool{}
	for _, d := range dirs {
		have[d] = true
	}
	for _, d := range cfg.ExtraExcludedDirs {
		if !have[d] {
			have[d] = true
			dirs = append(dirs, d)
		}
	}

	haveExt := map[string]bool{}
	for _, e := range extensions {
		haveExt[e] = true
	}
	for _, e := range cfg.ExtraBinaryExtensions {
		if !haveExt[e] {
			haveExt[e] = true
			extensions = append(extensions, e)
		}
	}
	return dirs, extensions
}

package analyzer

import (
	"path/filepath"
	"strings"
)

var languageExtensions = map[string]string{
	".py":         "Python",
	".js":         "JavaScript",
	".ts":         "TypeScript",
	".java":       "Java",
	".cpp":        "C++",
	".cc":         "C++",
	".cxx":        "C++",
	".c":          "C",
	".h":          "C/C++",
	".hpp":        "C++",
	".cs":         "C#",
	".php":        "PHP",
	".rb":         "Ruby",
	".go":         "Go",
	".rs":         "Rust",
	".swift":      "Swift",
	".kt":         "Kotlin",
	".scala":      "Scala",
	".sh":         "Shell",
	".bash":       "Bash",
	".zsh":        "Zsh",
	".ps1":        "PowerShell",
	".sql":        "SQL",
	".html":       "HTML",
	".htm":        "HTML",
	".css":        "CSS",
	".scss":       "SCSS",
	".sass":       "Sass",
	".less":       "Less",
	".xml":        "XML",
	".json":       "JSON",
	".yaml":       "YAML",
	".yml":        "YAML",
	".toml":       "TOML",
	".ini":        "INI",
	".cfg":        "Config",
	".conf":       "Config",
	".dockerfile": "Docker",
	".r":          "R",
	".m":          "MATLAB/Objective-C",
	".pl":         "Perl",
	".lua":        "Lua",
	".dart":       "Dart",
	".vue":        "Vue",
	".jsx":        "JSX",
	".tsx":        "TSX",
}

var binaryExtensions = map[string]struct{}{
	".exe": {}, ".dll": {}, ".so": {}, ".dylib": {}, ".bin": {}, ".obj": {}, ".o": {}, ".a": {}, ".lib": {},
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".bmp": {}, ".svg": {}, ".ico": {}, ".webp": {},
	".mp3": {}, ".wav": {}, ".ogg": {}, ".mp4": {}, ".avi": {}, ".mov": {}, ".wmv": {}, ".flv": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	".zip": {}, ".rar": {}, ".7z": {}, ".tar": {}, ".gz": {}, ".bz2": {}, ".xz": {},
	".ttf": {}, ".otf": {}, ".woff": {}, ".woff2": {}, ".eot": {},
	".class": {}, ".jar": {}, ".war": {}, ".ear": {},
	".pyc": {}, ".pyo": {}, ".pyd": {},
	".node": {}, ".wasm": {},
}

// interpreter markers are checked in order; the first match wins.
var shebangLanguages = []struct {
	markers  []string
	language string
}{
	{markers: []string{"python"}, language: "Python"},
	{markers: []string{"bash", "sh"}, language: "Shell"},
	{markers: []string{"node"}, language: "JavaScript"},
}

const shebangPrefix = "#!"

// LanguageForExtension returns the language of a lower-cased extension.
func LanguageForExtension(extension string) (string, bool) {
	language, known := languageExtensions[strings.ToLower(extension)]
	return language, known
}

// IsBinaryExtension reports whether files with extension are never line counted.
func IsBinaryExtension(extension string) bool {
	_, binary := binaryExtensions[strings.ToLower(extension)]
	return binary
}

// LanguageForShebang maps an interpreter line such as "#!/usr/bin/env python3".
func LanguageForShebang(firstLine string) (string, bool) {
	trimmedLine := strings.TrimSpace(firstLine)
	if !strings.HasPrefix(trimmedLine, shebangPrefix) {
		return "", false
	}
	for _, candidate := range shebangLanguages {
		for _, marker := range candidate.markers {
			if strings.Contains(trimmedLine, marker) {
				return candidate.language, true
			}
		}
	}
	return "", false
}

// FileExtension returns the lower-cased extension of a file name. Leading
// dots do not start an extension, so ".gitignore" has none, and a trailing
// dot alone is not an extension either.
func FileExtension(name string) string {
	extension := filepath.Ext(strings.TrimLeft(filepath.Base(name), "."))
	if extension == "." {
		return ""
	}
	return strings.ToLower(extension)
}

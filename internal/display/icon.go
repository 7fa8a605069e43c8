package display

import (
	"mime"
	"path/filepath"
	"strings"
)

const (
	iconImage       = "fas fa-image"
	iconVideo       = "fas fa-video"
	iconAudio       = "fas fa-music"
	iconPDF         = "fas fa-file-pdf"
	iconWord        = "fas fa-file-word"
	iconExcel       = "fas fa-file-excel"
	iconPowerpoint  = "fas fa-file-powerpoint"
	iconArchive     = "fas fa-file-archive"
	iconText        = "fas fa-file-alt"
	iconGeneric     = "fas fa-file"
	defaultMIMEType = "application/octet-stream"
)

var iconsByExt = map[string]string{
	".jpg": iconImage, ".jpeg": iconImage, ".png": iconImage, ".gif": iconImage, ".bmp": iconImage,
	".mp4": iconVideo, ".avi": iconVideo, ".mov": iconVideo, ".wmv": iconVideo,
	".mp3": iconAudio, ".wav": iconAudio, ".flac": iconAudio,
	".pdf": iconPDF,
	".doc": iconWord, ".docx": iconWord,
	".xls": iconExcel, ".xlsx": iconExcel,
	".ppt": iconPowerpoint, ".pptx": iconPowerpoint,
	".zip": iconArchive, ".rar": iconArchive, ".7z": iconArchive,
	".txt": iconText, ".md": iconText,
}

// Icon picks a Font Awesome class for a file. The MIME type wins when it is
// specific; otherwise the extension decides.
func Icon(name, mimeType string) string {
	if icon := iconForMIME(strings.ToLower(mimeType)); icon != "" {
		return icon
	}
	if icon, ok := iconsByExt[strings.ToLower(filepath.Ext(name))]; ok {
		return icon
	}
	return iconGeneric
}

func iconForMIME(m string) string {
	switch {
	case m == "" || m == defaultMIMEType:
		return ""
	case strings.HasPrefix(m, "image/"):
		return iconImage
	case strings.HasPrefix(m, "video/"):
		return iconVideo
	case strings.HasPrefix(m, "audio/"):
		return iconAudio
	case strings.Contains(m, "pdf"):
		return iconPDF
	case strings.Contains(m, "word"):
		return iconWord
	case strings.Contains(m, "excel"), strings.Contains(m, "spreadsheet"):
		return iconExcel
	case strings.Contains(m, "powerpoint"), strings.Contains(m, "presentation"):
		return iconPowerpoint
	case strings.Contains(m, "zip"), strings.Contains(m, "rar"), strings.Contains(m, "archive"):
		return iconArchive
	case strings.Contains(m, "text"):
		return iconText
	}
	return ""
}

// DetectMIME keeps a declared content type unless it is empty or the generic
// binary type, then falls back to the extension table.
func DetectMIME(name, declared string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != defaultMIMEType {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		return byExt
	}
	return defaultMIMEType
}

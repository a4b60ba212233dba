// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package httpx

import (
	"path/filepath"
	"strings"
)

// DefaultContentType is used for extensions missing from the table.
const DefaultContentType = "text/plain"

var contentTypes = map[string]string{
	"css":   "text/css",
	"gif":   "image/gif",
	"htm":   "text/html",
	"html":  "text/html",
	"ico":   "image/x-icon",
	"jpeg":  "image/jpeg",
	"jpg":   "image/jpeg",
	"js":    "application/javascript",
	"json":  "application/json",
	"map":   "application/json",
	"mjs":   "application/javascript",
	"pdf":   "application/pdf",
	"png":   "image/png",
	"svg":   "image/svg+xml",
	"txt":   "text/plain",
	"wasm":  "application/wasm",
	"webp":  "image/webp",
	"woff":  "font/woff",
	"woff2": "font/woff2",
	"xml":   "text/xml",
}

// ContentType returns the media type for path by its extension.
func ContentType(path string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if t, ok := contentTypes[ext]; ok {
		return t
	}
	return DefaultContentType
}

// Package ui содержит встроенные статические файлы веб-интерфейса
package ui

import "embed"

//go:embed index.html
var Content embed.FS

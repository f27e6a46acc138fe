package main

import (
	"github.com/vietddude/ocrguard/internal/cli"
	"github.com/vietddude/ocrguard/internal/infra/engine/tesseract"
)

func main() {
	cli.Execute(tesseract.New)
}

/*
Copyright © 2025 matthewtan01
*/
package main

import (
	"errors"
	"io/fs"
	"log"

	"github.com/joho/godotenv"

	"github.com/matthewtan01/pdf-rag/cmd"
)

func main() {
	cmd.Execute()
}

func init() {
	// credentials may come from the real environment instead
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("Error loading .env file: %v", err)
	}
}

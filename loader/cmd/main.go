package main

import (
	"log"

	"github.com/joho/godotenv"

	"arx/loader/internal"
	"arx/loader/service"
	"arx/loader/types"
)

func init() {
	mustLoadEnvVariables()
}

func main() {
	cfg := types.LoadConfig()
	if err := internal.CreateDirectories(cfg.SourceDir, cfg.ArchiveDir, cfg.BadDir); err != nil {
		log.Fatal("error to create loader directories: ", err)
	}

	service.New(cfg).Run()
}

func mustLoadEnvVariables() {
	if err := godotenv.Load(); err != nil {
		log.Fatal("Error loading .env file")
	}
}

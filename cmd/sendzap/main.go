package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/Mahaseias/sendzap/internal/app"
)

func main() {
	if os.Getenv("ENV") != "production" {
		if err := godotenv.Load(); err != nil {
			log.Printf("env: no .env loaded (%v), using process environment", err)
		}
	}
	app.Run()
}

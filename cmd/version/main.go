package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"go-batchd/pkg/version"
)

func main() {
	command := "info"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "info", "i":
		fmt.Println(version.GetBuildInfo())
	case "current", "c":
		fmt.Println(version.GetVersionString())
	case "json", "j":
		info := version.Get()
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			log.Fatalf("Error encoding JSON: %v", err)
		}
		fmt.Println(string(data))
	case "help", "h", "--help", "-h":
		showHelp()
	default:
		fmt.Printf("Error: unknown command '%s'\n", command)
		showHelp()
		os.Exit(1)
	}
}

func showHelp() {
	fmt.Println("Go Batchd Version Tool")
	fmt.Println("")
	fmt.Println("Usage: version <command>")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  info, i     Show detailed version information")
	fmt.Println("  current, c  Show current version string")
	fmt.Println("  json, j     Show version information as JSON")
	fmt.Println("  help, h     Show this help message")
}
